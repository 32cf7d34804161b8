package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mikey/mail-threat-analyzer/internal/di"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"go.uber.org/zap"
)

const (
	exitClean  = 0
	exitThreat = 1
	exitError  = 2
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env file: %v\n", err)
		os.Exit(exitError)
	}

	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(exitError)
	}

	code := exitError
	if err := container.Invoke(func(logger *zap.Logger, f ports.EmailFilter, src ports.MessageSource) {
		code = run(logger, f, src)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(code)
}

// run analyzes every message of the source and reports whether any was a threat
func run(logger *zap.Logger, f ports.EmailFilter, src ports.MessageSource) int {
	defer logger.Sync()
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := exitClean
	analyzed := 0
	for {
		msg, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error("Failed to read message", zap.Error(err))
			return exitError
		}

		assessment, err := f.ProcessEmail(ctx, msg.Data)
		if err != nil {
			logger.Warn("Skipping message", zap.String("id", msg.ID), zap.Error(err))
			if code == exitClean {
				code = exitError
			}
			continue
		}
		analyzed++

		if assessment.IsThreat {
			code = exitThreat
		}
	}

	logger.Debug("Analysis finished", zap.Int("messages", analyzed))
	return code
}
