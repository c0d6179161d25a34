// Package gitsync runs the stage/commit/pull/push sequence that publishes
// the vault to its remote.
package gitsync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// Config describes the repository and remote to synchronize.
type Config struct {
	GitPath       string // executable, resolved for the host
	WorkDir       string // repository working tree (the vault)
	Remote        string
	Branch        string
	CommitMessage string
}

// maxLine bounds a single logged line of git output.
const maxLine = 1 << 20

// Step is one git invocation.
type Step struct {
	Name string
	Args []string
}

// StepError reports the step that stopped a sync.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("gitsync: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Orchestrator executes the sync steps in order and stops at the first
// failure.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.GitPath == "" {
		cfg.GitPath = "git"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Steps returns the sequence Sync runs.
func (o *Orchestrator) Steps() []Step {
	return []Step{
		{Name: "add", Args: []string{"add", "-A"}},
		{Name: "commit", Args: []string{"commit", "-m", o.cfg.CommitMessage}},
		{Name: "pull", Args: []string{"pull", o.cfg.Remote, o.cfg.Branch}},
		{Name: "push", Args: []string{"push", "-u", o.cfg.Remote, o.cfg.Branch}},
	}
}

// Sync stages, commits, pulls and pushes. The first failing step aborts
// the remaining ones and is returned as a *StepError.
func (o *Orchestrator) Sync(ctx context.Context, changes int) error {
	o.logger.Info("sync: start",
		slog.Int("changes", changes),
		slog.String("dir", o.cfg.WorkDir))
	for _, step := range o.Steps() {
		if err := o.run(ctx, step); err != nil {
			o.logger.Error("sync: step failed, aborting",
				slog.String("step", step.Name),
				slog.String("error", err.Error()))
			return &StepError{Step: step.Name, Err: err}
		}
	}
	o.logger.Info("sync: done")
	return nil
}

// run executes one step and logs its combined output line by line.
func (o *Orchestrator) run(ctx context.Context, step Step) error {
	cmd := exec.CommandContext(ctx, o.cfg.GitPath, step.Args...)
	cmd.Dir = o.cfg.WorkDir

	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		o.logger.Info("sync: git",
			slog.String("step", step.Name),
			slog.String("line", scanner.Text()))
	}
	scanErr := scanner.Err()
	// git blocks on a full pipe if the rest of its output is left unread.
	_, _ = io.Copy(io.Discard, out)

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return err
	}
	if scanErr != nil {
		o.logger.Warn("sync: git output not fully logged",
			slog.String("step", step.Name),
			slog.String("error", scanErr.Error()))
	}
	return nil
}
