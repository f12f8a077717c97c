package main

import "github.com/OpenTraceLab/jtagft/cmd/jtagft/cmd"

func main() {
	cmd.Execute()
}
