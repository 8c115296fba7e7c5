package main

import (
	"os"

	"github.com/dvloznov/txn-loader/internal/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log := logger.New()
		log.Error().Err(err).Msg("txload failed")
		os.Exit(1)
	}
}
