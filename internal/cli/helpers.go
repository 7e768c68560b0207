package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"dirmover/internal/config"
	"dirmover/internal/database"
	"dirmover/internal/entry"
	"dirmover/internal/fs/local"
	"dirmover/internal/reparse"
	"dirmover/internal/relocate"
	"dirmover/internal/sizer"
	"dirmover/pkg/logger"
)

// progressInterval is how often long operations log a snapshot.
var progressInterval = time.Second

// app is everything a command needs, opened in the order main used to.
type app struct {
	cfg    *config.Config
	db     *database.DB
	policy *entry.SizePolicy
	engine *relocate.Engine
}

func openApp() (*app, error) {
	// 1. config
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}

	// 2. logging
	level := cfg.System.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if err := logger.Setup(level, cfg.System.LogFile); err != nil {
		return nil, fmt.Errorf("setting up logger: %w", err)
	}

	// 3. state database
	if dir := filepath.Dir(cfg.System.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}
	db, err := database.NewBoltDB(cfg.System.DBPath)
	if err != nil {
		return nil, err
	}

	// 4. engine
	policy := entry.NewSizePolicy(cfg.CalculateSizes, cfg.Disabled)
	eng := relocate.NewEngine(&relocate.EngineOptions{
		FS:             local.NewOSAdapter(),
		Resolver:       reparse.NewResolver(),
		Sets:           cfg.Sets(),
		Policy:         policy,
		Sizes:          db,
		Disabled:       db,
		MaxWorkers:     cfg.Engine.MaxWorkers,
		CopyBufferSize: cfg.Engine.CopyBufferBytes,
		VerifyCopies:   cfg.Engine.VerifyCopies,
	})
	if err := eng.LoadDisabled(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading disabled entries: %w", err)
	}

	slog.Debug("config loaded",
		"config", configPath,
		"sets", len(cfg.DirectorySets),
		"workers", cfg.Engine.MaxWorkers,
		"db", cfg.System.DBPath,
	)
	return &app{cfg: cfg, db: db, policy: policy, engine: eng}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("closing database failed", "err", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// watch calls fn every progressInterval until done is closed.
func watch(done <-chan struct{}, fn func()) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-done:
			return
		}
	}
}

func logSnapshot(msg, path string, s sizer.Snapshot) {
	slog.Info(msg,
		"path", path,
		"bytes", sizer.HumanSize(s.ProcessedBytes),
		"total", sizer.HumanSize(s.TotalBytes),
		"files", s.ProcessedFiles,
		"percent", fmt.Sprintf("%.1f", s.Percent()),
		"rate", units.BytesSize(s.Throughput())+"/s",
		"eta", s.Remaining().Round(time.Second),
	)
}

func absArg(arg string) (string, error) {
	p, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", arg, err)
	}
	return p, nil
}

func sizeColumn(en *entry.Entry) string {
	s := en.Size()
	switch s.State {
	case entry.Calculating:
		return "..."
	case entry.Available, entry.Failed:
		return sizer.HumanSize(s.Bytes())
	}
	return "-"
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	var answer string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &answer); err != nil {
		return false
	}
	return answer == "y" || answer == "Y" || answer == "yes"
}
