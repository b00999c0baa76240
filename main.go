package main

import "github.com/nvr-ai/go-yolox/cmd"

func main() {
	cmd.Execute()
}
