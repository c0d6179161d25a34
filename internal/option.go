package internal

import (
	"io"

	"github.com/starford/notesync/internal/debounce"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	stdin     io.Reader
	logOutput io.Writer
	syncer    debounce.Syncer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStdin sets the reader watched for the interactive stop. Defaults to
// os.Stdin.
func WithStdin(r io.Reader) Option {
	return func(a *application) {
		a.stdin = r
	}
}

// WithLogOutput redirects the JSON log stream. Defaults to os.Stdout.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithSyncer replaces the git orchestrator.
func WithSyncer(s debounce.Syncer) Option {
	return func(a *application) {
		a.syncer = s
	}
}
