package main

import "tipbot/cmd"

func main() {
	cmd.Execute()
}
