package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	a := newApp(os.Getenv)
	if err := execute(context.Background(), newRootCmd(a), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}
