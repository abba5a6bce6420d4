package main

import "github.com/bryanchriswhite/emacshere/cmd/emacshere/commands"

func main() {
	commands.Execute()
}
