// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes sync status, the journal and asset checks to LLM clients over
// streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notesync/internal/journal"
	"github.com/starford/notesync/internal/parser"
	"github.com/starford/notesync/internal/storage"
)

const layoutURI = "notesync://asset-layout"

// Trigger is the debounce state exposed to clients.
type Trigger interface {
	Pending() int64
	InFlight() bool
	Fires() int64
	LastFire() time.Time
	Flush()
}

// Watch reports on the watched tree.
type Watch interface {
	Root() string
	Watched() int
}

// Server wraps the MCP server with notesync tools.
type Server struct {
	mcp     *server.MCPServer
	trigger Trigger
	watch   Watch
	store   storage.Provider
	journal journal.Store
}

// New creates a new MCP server with all tools registered. history may be nil.
func New(trigger Trigger, watch Watch, store storage.Provider, history journal.Store) *Server {
	s := &Server{trigger: trigger, watch: watch, store: store, journal: history}

	s.mcp = server.NewMCPServer(
		"notesync",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report pending changes, whether a sync is running, and when the last sync fired."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("trigger_sync",
		mcp.WithDescription("Schedule a git sync at the end of the current quiet window, even if nothing changed."),
	), s.triggerSync)

	s.mcp.AddTool(mcp.NewTool("list_syncs",
		mcp.WithDescription("List recent sync attempts, newest first, with the failing step if any."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 50)")),
	), s.listSyncs)

	s.mcp.AddTool(mcp.NewTool("list_moves",
		mcp.WithDescription("List recently detected document moves and the assets that followed them."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 50)")),
	), s.listMoves)

	s.mcp.AddTool(mcp.NewTool("document_assets",
		mcp.WithDescription("List the assets a document references and whether each exists in its assets/ directory. "+
			"Read the notesync://asset-layout resource for the reference format."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path relative to the vault root (e.g. trips/alps.md)")),
	), s.documentAssets)

	s.mcp.AddResource(
		mcp.NewResource(layoutURI, "Asset Layout Contract",
			mcp.WithResourceDescription("How documents reference embedded assets so they follow moves."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLayoutResource,
	)

	return s
}

// Handler returns the streamable HTTP transport for mounting on a router.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type statusResult struct {
	Root        string     `json:"root"`
	WatchedDirs int        `json:"watchedDirs"`
	Pending     int64      `json:"pending"`
	InFlight    bool       `json:"inFlight"`
	Fires       int64      `json:"fires"`
	LastFire    *time.Time `json:"lastFire,omitempty"`
}

func (s *Server) syncStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := statusResult{
		Root:        s.watch.Root(),
		WatchedDirs: s.watch.Watched(),
		Pending:     s.trigger.Pending(),
		InFlight:    s.trigger.InFlight(),
		Fires:       s.trigger.Fires(),
	}
	if last := s.trigger.LastFire(); !last.IsZero() {
		res.LastFire = &last
	}
	return jsonResult(res)
}

func (s *Server) triggerSync(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.trigger.Flush()
	return mcp.NewToolResultText("sync scheduled"), nil
}

func (s *Server) listSyncs(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.journal == nil {
		return mcp.NewToolResultError("journal disabled"), nil
	}
	recs, err := s.journal.RecentSyncs(req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(recs)
}

func (s *Server) listMoves(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.journal == nil {
		return mcp.NewToolResultError("journal disabled"), nil
	}
	moves, err := s.journal.RecentMoves(req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(moves)
}

type assetRef struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
}

func (s *Server) documentAssets(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", doc)), nil
	}

	dir := path.Dir(doc)
	refs := []assetRef{}
	for _, name := range parser.Assets(data) {
		_, statErr := s.store.Stat(path.Join(dir, parser.AssetsDir, name))
		if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
			return mcp.NewToolResultError(statErr.Error()), nil
		}
		refs = append(refs, assetRef{Name: name, Present: statErr == nil})
	}
	return jsonResult(refs)
}

func (s *Server) readLayoutResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      layoutURI,
			MIMEType: "text/markdown",
			Text:     AssetLayoutContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
