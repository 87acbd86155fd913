package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"incident-analyzer/internal/application"
	"incident-analyzer/internal/config"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/infra/logging"
)

type globalOptions struct {
	configPath string
	verbose    bool
}

var opts globalOptions

// session is an in-process app with one finished analysis job.
type session struct {
	app *application.App
	job model.Job
}

func readSources(paths []string) ([]model.SourceFile, error) {
	files := make([]model.SourceFile, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, model.SourceFile{Name: filepath.Base(p), Content: b})
	}
	return files, nil
}

func cliLogger(cfg *config.Config) *zerolog.Logger {
	if !opts.verbose {
		return logging.Nop()
	}
	cfg.Log.Format = "console"
	return logging.NewWithWriter(cfg.Log, true, os.Stderr)
}

// analyze wires the app, submits the files and waits for the job to finish.
func analyze(ctx context.Context, paths []string) (*session, error) {
	files, err := readSources(paths)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(opts.configPath, false)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	app, err := application.Build(ctx, cfg, cliLogger(cfg))
	if err != nil {
		return nil, fmt.Errorf("wiring: %w", err)
	}
	app.SeedIfConfigured(ctx)
	app.Start(ctx)

	job, err := app.Analysis.Submit(ctx, files)
	if err != nil {
		app.Close()
		return nil, err
	}
	job, err = app.Wait(ctx, job.ID, 50*time.Millisecond)
	if err != nil {
		app.Close()
		return nil, err
	}
	if job.Stage == model.StageFailed {
		app.Close()
		return nil, fmt.Errorf("analysis failed: %s", job.Message)
	}
	return &session{app: app, job: job}, nil
}

func (s *session) Close() { _ = s.app.Close() }
