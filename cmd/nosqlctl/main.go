// Command nosqlctl is a cobra-based CLI scaffold demonstrating the
// driver core (ping/get/put subcommands), grounded on the pack's
// clients/cli module. It is explicitly outside the core's scope (spec
// §1 "no command-line surface is part of this core") — a demo, not an
// implementation.
package main

import "progressdb/nosqldb/cmd/nosqlctl/cmd"

func main() {
	cmd.Execute()
}
