package main

import "github.com/drugcrow/crow/cmd/crow/cli"

func main() {
	cli.Run()
}
