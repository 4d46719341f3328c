package cmd

import "fmt"

// Version and Commit are set at build time with -ldflags "-X ..."
var (
	Version = "dev"
	Commit  = "unknown"
)

func PrintVersion() {
	fmt.Printf("riki %s (%s)\n", Version, Commit)
}
