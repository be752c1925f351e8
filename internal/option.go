package internal

import (
	"io"

	"github.com/starford/notesync/internal/remote"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	remote    remote.Service
	version   string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the JSON log stream. Commands that print results
// or speak a protocol on stdout log to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithRemote replaces the HTTP client built from the remote config section.
func WithRemote(svc remote.Service) Option {
	return func(a *application) {
		a.remote = svc
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
