package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/localvakil/vakil/apps/vakil/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "vakil crashed: %v\n", r)
			if os.Getenv("VAKIL_DEBUG") != "" {
				debug.PrintStack()
			}
			os.Exit(2)
		}
	}()

	cmd.Execute()
}
