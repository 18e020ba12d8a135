package main

import "Giorgio/client/giorgio-cli/cmd"

func main() {
	cmd.Execute()
}
