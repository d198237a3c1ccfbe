package main

import "github.com/mame82/fotaflash/cmd"

func main() {
	cmd.Execute()
}
