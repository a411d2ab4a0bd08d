package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-agent/internal/di"
	"session-agent/internal/domain/entity"
	"session-agent/internal/infrastructure/env"
)

func main() {
	envService := env.NewEnvService()

	req := entity.Request{
		Credentials: entity.Credentials{
			Username: envService.MustGet("ACCOUNT_USERNAME"),
			Password: envService.MustGet("ACCOUNT_PASSWORD"),
			Email:    envService.Get("ACCOUNT_EMAIL"),
		},
		AccountKey: envService.Get("ACCOUNT_KEY"),
		TargetURL:  envService.Get("TARGET_URL"),
		Query:      envService.Get("SEARCH_QUERY"),
		MaxRecords: envService.GetInt("MAX_RECORDS", 20),
	}

	cfg := di.ConfigFromEnv(envService)
	cfg.RunName = req.Credentials.Username

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, envService.GetDuration("RUN_TIMEOUT", 30*time.Minute))
	defer cancel()

	container, err := di.NewContainer(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer container.Close()

	container.Logger.Info("run started", "site", container.Profile.Name, "max_records", req.MaxRecords)

	report := container.Engine.Run(ctx, req)

	container.Logger.Info("run finished",
		"outcome", report.Result.Outcome,
		"attempts", report.Attempts,
		"records", len(report.Records),
		"duration", report.Duration,
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		container.Logger.Error("failed to write report", "error", err)
	}

	switch {
	case report.Result.IsAuthenticated():
	case report.Result.IsChallenge():
		fmt.Fprintf(os.Stderr, "manual action required: %s\n", report.Result.Challenge)
		container.Close()
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "login failed: %s\n", report.Result.Reason)
		container.Close()
		os.Exit(1)
	}
}
