package main

import "github.com/nextlevelbuilder/omniwp/cmd"

func main() {
	cmd.Execute()
}
