package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/journal"
)

// Trigger is the debounce state the API reports on and flushes.
type Trigger interface {
	Pending() int64
	InFlight() bool
	Fires() int64
	LastFire() time.Time
	QuietWindow() time.Duration
	Flush()
}

// Watch reports on the watched tree.
type Watch interface {
	Root() string
	Watched() int
}

// Handler holds API route handlers. journal may be nil when journaling is
// disabled.
type Handler struct {
	trigger Trigger
	watch   Watch
	journal journal.Store
}

// NewHandler creates a new Handler.
func NewHandler(trigger Trigger, watch Watch, store journal.Store) *Handler {
	return &Handler{trigger: trigger, watch: watch, journal: store}
}

// Status handles GET /api/status.
//
//	@Summary	Watcher and sync status
//	@Tags		status
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Security	BearerAuth
//	@Router		/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Root:        h.watch.Root(),
		WatchedDirs: h.watch.Watched(),
		Pending:     h.trigger.Pending(),
		InFlight:    h.trigger.InFlight(),
		Fires:       h.trigger.Fires(),
		QuietWindow: h.trigger.QuietWindow().String(),
	}
	if last := h.trigger.LastFire(); !last.IsZero() {
		resp.LastFire = &last
	}
	if h.journal != nil {
		rec, err := h.journal.LastSync()
		switch {
		case err == nil:
			resp.LastSync = &rec
		case !errors.Is(err, apperr.ErrNotFound):
			slog.Error("api: last sync lookup failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerSync handles POST /api/sync.
//
//	@Summary	Schedule a sync at the end of the quiet window
//	@Tags		status
//	@Produce	json
//	@Success	202	{object}	TriggerResponse
//	@Security	BearerAuth
//	@Router		/sync [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.trigger.Flush()
	writeJSON(w, http.StatusAccepted, TriggerResponse{Status: "scheduled"})
}

// ListSyncs handles GET /api/syncs.
//
//	@Summary	Recent sync attempts
//	@Tags		journal
//	@Produce	json
//	@Param		limit	query		int	false	"Max records"
//	@Success	200		{object}	SyncListResponse
//	@Failure	503		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/syncs [get]
func (h *Handler) ListSyncs(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	recs, err := h.journal.RecentSyncs(limitParam(r))
	if err != nil {
		slog.Error("api: list syncs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, SyncListResponse{Syncs: recs})
}

// ListMoves handles GET /api/moves.
//
//	@Summary	Recent detected moves
//	@Tags		journal
//	@Produce	json
//	@Param		limit	query		int	false	"Max records"
//	@Success	200		{object}	MoveListResponse
//	@Failure	503		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/moves [get]
func (h *Handler) ListMoves(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	moves, err := h.journal.RecentMoves(limitParam(r))
	if err != nil {
		slog.Error("api: list moves failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, MoveListResponse{Moves: moves})
}

func limitParam(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}
