// The main package for the tiktok-monitor executable.
package main

import (
	"github.com/JakeFAU/tiktok-monitor/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
