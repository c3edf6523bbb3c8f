// Command menuctl operates on a device-local SQLite menu store: loading the
// seed catalog, importing AI suggestions and drawing suggestions offline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
