package main

import "ncmc/cmd"

func main() {
	cmd.Execute()
}
