package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/tomachalek/riki/cmd"
	"github.com/tomachalek/riki/core"
	"github.com/tomachalek/riki/plugins"
	"go.uber.org/zap"
)

func main() {
	config, err := core.ParseCommandLineArguments(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if config.Mode == "version" {
		cmd.PrintVersion()
		return
	}

	if err := core.InitLogger(config.LogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer core.SyncLogger()
	core.Info("using Riki configuration", zap.String("path", config.FilePath))

	if config.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	renderer, err := plugins.NewMarkdownRenderer(config.MarkdownExtensions)
	if err != nil {
		core.Error("invalid markdown configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx := core.Context{Config: config, Renderer: renderer}
	switch config.Mode {
	case "index":
		err = cmd.Index(&ctx, renderer)
	default:
		err = cmd.Run(&ctx, renderer)
	}
	if err != nil {
		core.Error("command failed", zap.String("command", config.Mode), zap.Error(err))
		core.SyncLogger()
		os.Exit(1)
	}
}
