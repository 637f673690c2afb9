// Command pdfengine merges, splits, rotates, watermarks, compresses and
// converts PDF files from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

var version = "0.1.0"

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("pdfengine %s\n", version))
}
