package main

import "github.com/snapshot-labs/boost-guard/cmd"

func main() {
	cmd.Execute()
}
