package internal

import (
	"context"
	"fmt"

	"github.com/starford/notesync/internal/mcpserver"
	"github.com/starford/notesync/internal/noteservice"
	"github.com/starford/notesync/internal/reconcile"
)

// Sync runs one full sync pass against the configured remote.
func Sync(ctx context.Context, opts ...Option) (reconcile.Summary, error) {
	app, err := newApplication(opts)
	if err != nil {
		return reconcile.Summary{}, err
	}
	rt, err := app.bootstrap(bootstrapOptions{})
	if err != nil {
		return reconcile.Summary{}, err
	}
	defer rt.close()
	return rt.svc.Sync(ctx)
}

// Import fills an empty local store with every note on the remote and
// returns the number imported.
func Import(ctx context.Context, opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}
	rt, err := app.bootstrap(bootstrapOptions{})
	if err != nil {
		return 0, err
	}
	defer rt.close()
	return rt.engine.RunBootstrapImport(ctx)
}

// CreateNote adds a local note with the given initial content and saves it.
func CreateNote(ctx context.Context, title string, opts ...Option) (*noteservice.NoteDetail, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := app.bootstrap(bootstrapOptions{})
	if err != nil {
		return nil, err
	}
	defer rt.close()
	return rt.svc.CreateNote(ctx, title)
}

// ListNotes returns local notes whose content matches pattern, newest first.
func ListNotes(ctx context.Context, pattern string, opts ...Option) ([]noteservice.NoteListItem, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := app.bootstrap(bootstrapOptions{})
	if err != nil {
		return nil, err
	}
	defer rt.close()
	return rt.svc.ListNotes(ctx, pattern)
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.bootstrap(bootstrapOptions{mirror: true})
	if err != nil {
		return err
	}
	defer rt.close()
	if err := mcpserver.New(rt.svc, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
