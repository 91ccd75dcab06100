package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/yfschool/portal/apps/portalctl/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "portalctl crashed: %v\n", r)
			if os.Getenv("PORTAL_DEBUG") != "" {
				debug.PrintStack()
			}
			os.Exit(2)
		}
	}()

	cmd.Execute()
}
