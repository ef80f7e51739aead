// The main package for the battlecrawler executable.
package main

import (
	"github.com/JakeFAU/ladder-battle-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
