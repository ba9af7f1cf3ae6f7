/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command siteapi runs the API of the marketing site.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/leadforge/siteapi/internal/version"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionString() string {
	return version.ProductName + " " + version.Get()
}
