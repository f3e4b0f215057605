package main

import "github.com/dongshu2013/the-agent-bot/cmd"

func main() {
	cmd.Execute()
}
