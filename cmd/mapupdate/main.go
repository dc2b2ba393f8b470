// mapupdate refreshes a local Traveller Map data snapshot.
//
// Subcommands:
//
//	update  refresh the snapshot and commit it (the default)
//	verify  sanity-check an existing snapshot
//	commit  run just the commit step against the current tree
//	stats   summarize past runs from the report files
package main

import "os"

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(NewDefaultApp().Run(os.Args[1:]))
}
