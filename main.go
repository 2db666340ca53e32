// main.go
//
// Entry point that hands the command line to the Cobra root command in cmd/root.go

package main

import (
	"github.com/vital-sim/vital-sim/cmd"
)

func main() {
	cmd.Execute()
}
