package main

import "github.com/naka-gawa/pr-engagement/cmd"

func main() {
	cmd.Execute()
}
