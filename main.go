package main

import "github.com/audiolibrelab/streamrec/cmd"

func main() {
	cmd.Execute()
}
