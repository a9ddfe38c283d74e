package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"VibeQ/core/errs"
	"VibeQ/core/hub"
	"VibeQ/core/nowplaying"
	"VibeQ/core/queue"
	"VibeQ/logger"
	"VibeQ/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// IdentityHeader carries the caller's soft identity on removals.
const IdentityHeader = "X-Identity"

// APIHandler serves the queue and now-playing endpoints.
type APIHandler struct {
	queue      *queue.Service
	nowPlaying *nowplaying.Service
	hub        *hub.Hub
	upgrader   websocket.Upgrader
}

func NewAPIHandler(q *queue.Service, np *nowplaying.Service, h *hub.Hub) *APIHandler {
	return &APIHandler{
		queue:      q,
		nowPlaying: np,
		hub:        h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type appendTrackRequest struct {
	Title           string           `json:"title"`
	Performer       string           `json:"performer"`
	SourceKind      model.SourceKind `json:"sourceKind"`
	Locator         string           `json:"locator"`
	Thumbnail       string           `json:"thumbnail,omitempty"`
	DurationSeconds *int             `json:"durationSeconds,omitempty"`
	Identity        string           `json:"identity"`
}

type setNowPlayingRequest struct {
	TrackID string `json:"trackId"`
}

// NowPlayingResponse is the body of GET /api/now-playing.
type NowPlayingResponse struct {
	CurrentTrackID *string           `json:"currentTrackId"`
	CurrentTrack   *model.TrackEntry `json:"currentTrack"`
}

type errorResponse struct {
	Error       string `json:"error"`
	WaitMinutes int    `json:"waitMinutes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if rl, ok := errs.AsRateLimit(err); ok {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: rl.Error(), WaitMinutes: rl.WaitMinutes})
		return
	}

	switch {
	case errors.Is(err, errs.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "Unauthorized"})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	default:
		logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

// ListTracksHandler handles GET /api/tracks.
func (h *APIHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.queue.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// AppendTrackHandler handles POST /api/tracks.
func (h *APIHandler) AppendTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req appendTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	entry, err := h.queue.Append(r.Context(), queue.AppendRequest{
		Title:           req.Title,
		Performer:       req.Performer,
		SourceKind:      req.SourceKind,
		Locator:         req.Locator,
		Thumbnail:       req.Thumbnail,
		DurationSeconds: req.DurationSeconds,
		Identity:        req.Identity,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RemoveTrackHandler handles DELETE /api/tracks/{id}.
func (h *APIHandler) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.queue.Remove(r.Context(), id, r.Header.Get(IdentityHeader)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetNowPlayingHandler handles GET /api/now-playing.
func (h *APIHandler) GetNowPlayingHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.nowPlaying.Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := NowPlayingResponse{CurrentTrack: track}
	if track != nil {
		resp.CurrentTrackID = &track.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetNowPlayingHandler handles POST /api/now-playing.
func (h *APIHandler) SetNowPlayingHandler(w http.ResponseWriter, r *http.Request) {
	var req setNowPlayingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	track, err := h.nowPlaying.Set(r.Context(), req.TrackID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "currentTrack": track})
}

// EventsHandler upgrades GET /ws/events and streams change events.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("failed to upgrade websocket", logger.ErrorField(err))
		return
	}
	h.hub.Serve(conn, uuid.NewString())
}

// HealthHandler handles GET /health.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"eventClients": h.hub.ClientCount(),
	})
}
