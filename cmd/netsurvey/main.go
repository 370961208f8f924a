package main

import (
	"os"

	"github.com/projectdiscovery/gologger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		gologger.Error().Msgf("%s", err)
		os.Exit(1)
	}
}
