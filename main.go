package main

import "github.com/agentic-research/strata/cmd"

func main() {
	cmd.Execute()
}
