package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/mitchellh/cli"
)

func main() {
	args := os.Args[1:]

	commands := map[string]cli.CommandFactory{
		"listen": func() (cli.Command, error) {
			return &ListenCommand{
				ShutDownCh: makeShutdownCh(),
			}, nil
		},
		"exec": func() (cli.Command, error) {
			return &ExecCommand{}, nil
		},
	}

	liteCLI := &cli.CLI{
		Args:     args,
		Commands: commands,
		HelpFunc: cli.BasicHelpFunc("litedb"),
	}

	exitCode, err := liteCLI.Run()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}

	os.Exit(exitCode)
}

func makeShutdownCh() <-chan struct{} {
	shutdownCh := make(chan struct{})
	signalCh := make(chan os.Signal, 1)

	signal.Notify(signalCh, os.Interrupt)

	go func() {
		defer close(shutdownCh)
		<-signalCh
	}()

	return shutdownCh
}
