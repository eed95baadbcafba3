// The main package for the leadfinder executable.
package main

import (
	"github.com/JakeFAU/leadership-finder/cmd"
)

func main() {
	cmd.Execute()
}
