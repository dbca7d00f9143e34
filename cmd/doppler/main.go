// Command doppler converts neural-network weight files into a sharded,
// content-addressed registry format and serves or fetches that registry
// across a network with resume and integrity verification.
package main

import (
	"os"

	"github.com/clocksmith/doppler/cmd/doppler/commands"
)

func main() {
	os.Exit(commands.Execute())
}
