package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "siteaudit: failed to init logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := newRootCmd(logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "siteaudit: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}
