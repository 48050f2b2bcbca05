package main

import (
	"os"

	"github.com/forsitet/review-workflow-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
