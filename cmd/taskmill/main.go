package main

import "github.com/amrshaker/taskmill/internal/cli"

func main() {
	cli.Execute()
}
