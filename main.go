package main

import "github.com/januslabs/janus/cmd"

func main() {
	cmd.Execute()
}
