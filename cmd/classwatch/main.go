package main

import "github.com/example/classwatch/cmd"

func main() {
	cmd.Execute()
}
