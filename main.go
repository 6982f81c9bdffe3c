package main

import "github.com/mindweaver/ragchunk/cmd"

func main() {
	cmd.Execute()
}
