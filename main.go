package main

import (
	"os"

	"github.com/ikoma-ai/ikoma/cmd"
	"github.com/ikoma-ai/ikoma/internal/logger"
)

func main() {
	defer logger.HandlePanic()
	os.Exit(cmd.Execute())
}
