package main

import (
	"os"

	"orgsync/cmd/orgsync/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
