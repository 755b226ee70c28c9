// Command pushsend performs a one-shot push delivery using a pipeline
// described in the embedded config file, with credentials supplied through
// environment variables.
package main

import (
	"context"
	_ "embed"
	"flag"
	"log/slog"
	"os"

	"github.com/tinywideclouds/go-push-dispatch/config"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "pushsend")
	slog.SetDefault(logger)

	var (
		body    = flag.String("body", "", "notification body")
		subject = flag.String("subject", "", "notification subject")
		device  = flag.String("device", "", "device identifier (token or web subscription JSON)")
		kind    = flag.String("kind", push.KindAndroid, "device kind: android, ios or web")
	)
	flag.Parse()

	if *body == "" || *device == "" {
		logger.Error("both -body and -device are required")
		os.Exit(1)
	}

	// --- Config Loading ---
	cfg, err := config.NewConfigFromYaml(configFile, logger)
	if err != nil {
		logger.Error("Failed to parse embedded yaml config", "err", err)
		os.Exit(1)
	}
	cfg, err = config.UpdateConfigWithEnvOverrides(cfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Pipeline ---
	dispatcher, err := config.Build(cfg, logger)
	if err != nil {
		logger.Error("Failed to build dispatch pipeline", "err", err)
		os.Exit(1)
	}

	msg := push.Message{Body: *body, Subject: *subject}
	dev := push.Device{Identifier: *device, Kind: *kind}

	if err := dispatcher.Deliver(context.Background(), msg, dev); err != nil {
		logger.Error("Delivery failed", "err", err)
		os.Exit(1)
	}
	logger.Info("Delivery complete", "kind", *kind)
}
