package main

import (
	"os"

	_ "ccs-host/cmd"
	"ccs-host/cmd/root"
	"ccs-host/internal/config"
	"ccs-host/internal/logger"
)

func main() {
	// The flag is parsed again by cobra; the early scan only decides how
	// logging is initialized before Execute runs.
	verbose := false
	for _, arg := range os.Args[1:] {
		if arg == "--verbose" {
			verbose = true
			break
		}
	}
	level := config.Config.Log.Level
	if verbose {
		level = "debug"
	}
	logger.InitLogger(config.Config.Log.Path, level, verbose)

	if err := root.RootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
	os.Exit(0)
}
