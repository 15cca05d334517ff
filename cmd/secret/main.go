// Package main prints a fresh ZMOOTH_SECRET_KEY assignment.
package main

import (
	"flag"
	"os"

	"github.com/zmooth/zmooth/internal/platform/config"
	"github.com/zmooth/zmooth/internal/tools/secretkey"
)

func main() {
	cfg, err := secretkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := secretkey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate key: %v", err)
	}
}
