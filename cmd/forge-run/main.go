// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// forge-run parses a forgeArtifact markup document and drives a build
// session against a sandbox: mount the files, install dependencies,
// start the dev server, and print the preview URL. The document is
// read incrementally, so piping a streamed model response works the
// same as a file on disk.
//
// Configuration comes from a YAML file named by FORGE_CONFIG or
// --config; without one the npm defaults apply. FORGE_DEBUG enables
// debug logging.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/forge-foundation/forge/lib/action"
	"github.com/forge-foundation/forge/lib/config"
	"github.com/forge-foundation/forge/lib/markup"
	"github.com/forge-foundation/forge/lib/replay"
	"github.com/forge-foundation/forge/orchestrator"
	"github.com/forge-foundation/forge/runtime/local"
	"github.com/forge-foundation/forge/statusfeed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "forge-run:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		inputPath  string
		projectDir string
		listen     string
		replayPath string
		chunkSize  int
		noStart    bool
	)
	pflag.StringVar(&configPath, "config", "", "path to forge.yaml (overrides FORGE_CONFIG)")
	pflag.StringVar(&inputPath, "input", "-", "markup document to build, - for stdin")
	pflag.StringVar(&projectDir, "dir", "", "project mount directory (default: a temp dir)")
	pflag.StringVar(&listen, "listen", "", "serve step status on this address (overrides config)")
	pflag.StringVar(&replayPath, "replay-log", "", "write the session replay log here (overrides config)")
	pflag.IntVar(&chunkSize, "chunk-size", 4096, "document read chunk size in bytes")
	pflag.BoolVar(&noStart, "no-start", false, "mount and install only, do not start the dev server")
	pflag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Feed.Listen = listen
	}
	if replayPath != "" {
		cfg.Replay.Path = replayPath
	}

	level := slog.LevelInfo
	if os.Getenv("FORGE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(orchestrator.Options{
		Runtime: local.New(projectDir),
		Config:  cfg,
		Logger:  logger,
	})
	defer orch.Close()

	updates, cancelRender := orch.Tracker().Subscribe()
	defer cancelRender()
	go newRenderer(os.Stderr).run(updates)

	if cfg.Feed.Listen != "" {
		feed := statusfeed.New(statusfeed.Options{Orchestrator: orch, Logger: logger})
		go func() {
			if err := feed.Run(ctx, cfg.Feed.Listen); err != nil {
				logger.Error("statusfeed failed", "error", err)
			}
		}()
	}

	artifact, warnings, document, err := mountIncrementally(ctx, orch, inputPath, chunkSize)
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		logger.Warn("dropped action", "detail", warning.String())
	}
	if narration := markup.PlainText(document); narration != "" {
		fmt.Println(idleStyle.Render(narration))
	}

	if cfg.Replay.Path != "" {
		if err := writeReplayLog(cfg.Replay.Path, orch, artifact); err != nil {
			return err
		}
	}

	if noStart {
		return orch.EnsureDependencies(ctx)
	}

	if err := orch.StartDevServer(ctx); err != nil {
		return err
	}
	url, err := orch.WaitReady(ctx)
	if err != nil {
		return err
	}
	fmt.Println("preview:", urlStyle.Render(url))

	<-ctx.Done()
	logger.Info("shutting down")
	return orch.StopWithTimeout(context.Background(), cfg.StopTimeout())
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// mountIncrementally reads the document chunk by chunk, re-parsing the
// accumulated text after each read and mounting whenever new actions
// became visible. The parse is deterministic, so re-mounting a grown
// document only writes files that changed.
func mountIncrementally(ctx context.Context, orch *orchestrator.Orchestrator, inputPath string, chunkSize int) (action.Artifact, []action.Warning, string, error) {
	input := os.Stdin
	if inputPath != "-" {
		file, err := os.Open(inputPath)
		if err != nil {
			return action.Artifact{}, nil, "", fmt.Errorf("opening input: %w", err)
		}
		defer file.Close()
		input = file
	}

	var document []byte
	var artifact action.Artifact
	var warnings []action.Warning
	mountedActions := -1

	buffer := make([]byte, chunkSize)
	for {
		n, readErr := input.Read(buffer)
		document = append(document, buffer[:n]...)

		artifact, warnings = action.Parse(string(document))
		if len(artifact.Actions) != mountedActions && len(artifact.Actions) > 0 {
			if err := orch.Mount(ctx, artifact); err != nil {
				return artifact, warnings, string(document), err
			}
			mountedActions = len(artifact.Actions)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return artifact, warnings, string(document), fmt.Errorf("reading input: %w", readErr)
		}
	}

	if len(artifact.Actions) == 0 {
		return artifact, warnings, string(document), errors.New("document contains no build actions")
	}
	return artifact, warnings, string(document), nil
}

// writeReplayLog records the session: header, every parsed action, and
// the step states reached so far.
func writeReplayLog(path string, orch *orchestrator.Orchestrator, artifact action.Artifact) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating replay log: %w", err)
	}
	defer file.Close()

	writer, err := replay.NewWriter(file, replay.Header{
		SessionID:     orch.SessionID(),
		ArtifactID:    artifact.ID,
		ArtifactTitle: artifact.Title,
	})
	if err != nil {
		return err
	}
	for _, act := range artifact.Actions {
		if err := writer.RecordAction(act); err != nil {
			return err
		}
	}
	for _, entry := range orch.Tracker().Snapshot() {
		if err := writer.RecordStep(entry); err != nil {
			return err
		}
	}
	return nil
}
