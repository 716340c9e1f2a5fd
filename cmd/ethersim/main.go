// Command ethersim runs discrete-event Ethernet collision-domain scenarios
// described by a YAML config (see internal/config).
package main

import "github.com/dantte-lp/ethersim/cmd/ethersim/commands"

func main() {
	commands.Execute()
}
