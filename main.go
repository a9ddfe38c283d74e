package main

import (
	"VibeQ/cmd"
)

func main() {
	cmd.Execute()
}
