package main

import "github.com/mcoot/proxymail/internal/cli"

func main() {
	cli.Execute()
}
