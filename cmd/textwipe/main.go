package main

import "github.com/forPelevin/textwipe/internal/cli"

func main() {
	cli.Main()
}
