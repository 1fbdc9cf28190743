// Command goclaw is the entrypoint for the outbound DM campaign
// scheduler: `goclaw serve` runs the process, `goclaw migrate` applies
// pending database migrations.
package main

import "github.com/nextlevelbuilder/goclaw/cmd"

func main() {
	cmd.Execute()
}
