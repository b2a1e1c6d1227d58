package main

import "github.com/pipelet/pipelet/cmd/pipelet/cli"

func main() {
	cli.Execute()
}
