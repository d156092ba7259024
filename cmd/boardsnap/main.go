// Command boardsnap renders board fixtures without a window: to image
// files, or on demand over HTTP.
package main

import (
	"os"
)

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
