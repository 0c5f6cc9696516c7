package main

import "github.com/encodeous/bgpsim/cmd"

func main() {
	cmd.Execute()
}
