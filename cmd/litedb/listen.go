package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/joeandaverde/litedb/internal/backend"
	"github.com/joeandaverde/litedb/internal/server"
)

type ListenConfig struct {
	Addr     string       `yaml:"addr"`
	Path     string       `yaml:"path"`
	PageSize int          `yaml:"page_size"`
	MaxConns int          `yaml:"max_conns"`
	LogLevel logrus.Level `yaml:"log_level"`
}

type ListenCommand struct {
	ShutDownCh <-chan struct{}
}

func (i *ListenCommand) Help() string {
	helpText := `
Usage: litedb listen [options]

Options:

	-config=""	Database configuration file
`

	return strings.TrimSpace(helpText)
}

func (i *ListenCommand) Synopsis() string {
	return "Accepts client connections to interact with database"
}

func (i *ListenCommand) Run(args []string) int {
	var configPath string

	cmdFlags := flag.NewFlagSet("listen", flag.ExitOnError)
	cmdFlags.StringVar(&configPath, "config", "litedb.yml", "config file")

	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}

	configFile, err := os.Open(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error opening config file: %s\n", err.Error())
		return 1
	}
	defer configFile.Close()

	configDecoder := yaml.NewDecoder(configFile)
	config := &ListenConfig{}
	if err := configDecoder.Decode(config); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err.Error())
		return 1
	}

	logger := logrus.New()
	logger.SetLevel(config.LogLevel)

	db, err := backend.Open(logger, backend.Config{
		Path:     config.Path,
		PageSize: config.PageSize,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err.Error())
		return 1
	}

	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error listening on %s: %s\n", config.Addr, err.Error())
		return 1
	}
	defer ln.Close()

	go func() {
		<-i.ShutDownCh
		logger.Info("shutting down")
		ln.Close()
	}()

	dbServer := server.NewServer(logger, server.Config{
		MaxConns: config.MaxConns,
	})

	logger.WithFields(logrus.Fields{
		"addr": ln.Addr().String(),
		"path": config.Path,
	}).Info("listening for connections")

	if err := dbServer.Serve(ln, db); err != nil {
		return 0
	}

	return 0
}
