package main

import "github.com/theirongolddev/aconv/cmd"

func main() {
	cmd.Execute()
}
