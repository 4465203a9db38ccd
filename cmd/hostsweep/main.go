// Command hostsweep discovers hosts and open ports with nmap.
package main

import "github.com/anstrom/hostsweep/cmd/cli"

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
