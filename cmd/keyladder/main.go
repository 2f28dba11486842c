package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"
)

// run loads the configuration and executes the selected subcommand.
func run(args []string) error {
	cfg, parser, err := loadConfig(args)
	if err != nil {
		return err
	}

	parser.CommandHandler = func(cmd flags.Commander, cmdArgs []string) error {
		if cfg.DebugLevel == "show" {
			fmt.Println("Supported subsystems", supportedSubsystems())
			return nil
		}
		if err := cfg.validate(); err != nil {
			return err
		}
		if !cfg.NoFileLog {
			logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
			if err := initLogRotator(logFile); err != nil {
				return err
			}
			defer logRotator.Close()
		}
		if err := setLogLevels(cfg.DebugLevel); err != nil {
			return err
		}
		kldrLog.Debugf("Running %s with config file %s", strings.Join(args, " "),
			cfg.ConfigFile)
		return cmd.Execute(cmdArgs)
	}

	_, err = parser.ParseArgs(args)
	return err
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
