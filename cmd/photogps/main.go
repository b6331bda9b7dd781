// cmd/photogps/main.go
package main

import (
	"github.com/bstardust/photo-gps-resolver/internal/logger"
	"github.com/bstardust/photo-gps-resolver/pkg/cli"
)

func main() {
	// Initialize logger
	logger.Init()

	// Execute CLI
	cli.Execute()
}
