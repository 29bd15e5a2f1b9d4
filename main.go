package main

import (
	"StudioFM/cmd"
)

func main() {
	cmd.Execute()
}
