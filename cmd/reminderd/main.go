package main

import (
	"fmt"
	"os"

	"equipment-reminders/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reminderd:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
