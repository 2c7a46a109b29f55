package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"remindbot/cmd/remindbot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
