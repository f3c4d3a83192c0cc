package main

import "github.com/civicproof/boundary-registry/cmd/registry/cmd"

func main() {
	cmd.Execute()
}
