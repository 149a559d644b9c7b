package main

import "wsoak/cmd"

func main() {
	cmd.Execute()
}
