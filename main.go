package main

import (
	"wavecast/cmd"
)

func main() {
	cmd.Execute()
}
