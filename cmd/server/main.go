package main

import "github.com/Rodney-akong/Alx-DjangoLearnLab/cmd/server/commands"

func main() {
	commands.Execute()
}
