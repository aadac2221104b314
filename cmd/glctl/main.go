package main

import "github.com/example/gl-core/internal/commands"

func main() {
	commands.Execute()
}
