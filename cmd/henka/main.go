package main

import (
	"log"
	"os"

	"github.com/mitchellh/cli"

	"github.com/root-talis/henka/v2/internal/command"
)

func main() {
	const appName, appVersion = "henka", "2.0.0"

	c := cli.NewCLI(appName, appVersion)
	c.Args = os.Args[1:]
	c.Autocomplete = true
	c.Commands = command.Commands(command.DefaultEnv())

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}

	os.Exit(exitStatus)
}
