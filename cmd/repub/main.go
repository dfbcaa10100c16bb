package main

import (
	"repub/cmd/handlers"
	"repub/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
