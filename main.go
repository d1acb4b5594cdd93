package main

import "github.com/vesper-sci/vesper/internal/cli"

func main() {
	cli.Execute()
}
