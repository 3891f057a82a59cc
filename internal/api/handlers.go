package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/recall/internal/apperr"
	"github.com/starford/recall/internal/index"
	"github.com/starford/recall/internal/review"
	"github.com/starford/recall/internal/reviewservice"
	"github.com/starford/recall/internal/schedule"
)

const defaultTopRanked = 10

// Handler holds API route handlers.
type Handler struct {
	svc *reviewservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *reviewservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeResponse(w http.ResponseWriter, r *http.Request) (schedule.Response, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, schedule.ErrInvalidResponse) {
			writeJSON(w, http.StatusBadRequest, errorBody("response must be one of Hard, Good, Easy"))
		} else {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		}
		return 0, false
	}
	if !req.Response.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorBody("response is required"))
		return 0, false
	}
	return req.Response, true
}

// Queue handles GET /api/queue.
//
//	@Summary		Current review queues and the most important notes
//	@Tags			queue
//	@Produce		json
//	@Param			top	query		int	false	"Number of top ranked notes"
//	@Success		200	{object}	QueueResponse
//	@Security		BearerAuth
//	@Router			/queue [get]
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	top := defaultTopRanked
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("top must be a non-negative integer"))
			return
		}
		top = n
	}

	q := h.svc.Queue(r.Context())
	resp := QueueResponse{
		Stats:     q.Stats(),
		NotesDue:  nonNil(q.NotesDue[:q.DueCount]),
		NotesNew:  nonNil(q.NotesNew),
		Upcoming:  nonNil(q.NotesDue[q.DueCount:]),
		TopRanked: []RankedNote{},
	}
	for _, p := range q.TopRanked(top) {
		resp.TopRanked = append(resp.TopRanked, RankedNote{Path: p, Score: q.Ranks[p]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func nonNil(notes []review.Note) []review.Note {
	if notes == nil {
		return []review.Note{}
	}
	return notes
}

// Sync handles POST /api/sync.
//
//	@Summary		Reindex the vault and rebuild the review queues
//	@Tags			queue
//	@Produce		json
//	@Success		200	{object}	SyncReport
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Sync(r.Context())
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// NextNote handles GET /api/notes/next.
//
//	@Summary		Next note to review
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	review.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/next [get]
func (h *Handler) NextNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.NextNote(r.Context())
	if err != nil {
		writeError(w, "next note", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a note with its schedule, score and backlinks
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.Note(r.Context(), path)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// PreviewNote handles GET /api/notes/preview/*.
//
//	@Summary		Interval and ease each response would give a note
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	PreviewResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/preview/{path} [get]
func (h *Handler) PreviewNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	previews, err := h.svc.PreviewNote(r.Context(), path)
	if err != nil {
		writeError(w, "preview note", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Path: path, Previews: previews})
}

// ReviewNote handles POST /api/notes/review/*.
//
//	@Summary		Record a review response for a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Note path"
//	@Param			body	body		ReviewRequest	true	"Review response"
//	@Success		200		{object}	NoteResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/review/{path} [post]
func (h *Handler) ReviewNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	resp, ok := decodeResponse(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ReviewNote(r.Context(), path, resp)
	if err != nil {
		writeError(w, "review note", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SkipNote handles POST /api/notes/skip/*.
//
//	@Summary		Drop a note from the queue until the next sync
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note skipped"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/skip/{path} [post]
func (h *Handler) SkipNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.SkipNote(r.Context(), path); err != nil {
		writeError(w, "skip note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NextCard handles GET /api/cards/next.
//
//	@Summary		Next flash-card to review
//	@Tags			cards
//	@Produce		json
//	@Success		200	{object}	Card
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/next [get]
func (h *Handler) NextCard(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.NextCard(r.Context())
	if err != nil {
		writeError(w, "next card", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ReviewCard handles POST /api/cards/{id}/review.
//
//	@Summary		Record a review response for a flash-card
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Card ID"
//	@Param			body	body		ReviewRequest	true	"Review response"
//	@Success		200		{object}	CardResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/review [post]
func (h *Handler) ReviewCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, ok := decodeResponse(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ReviewCard(r.Context(), id, resp)
	if err != nil {
		writeError(w, "review card", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SkipCard handles POST /api/cards/{id}/skip.
//
//	@Summary		Drop a flash-card from the queue until the next sync
//	@Tags			cards
//	@Param			id	path	string	true	"Card ID"
//	@Success		204	"Card skipped"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/skip [post]
func (h *Handler) SkipCard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SkipCard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "skip card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reviews handles GET /api/reviews.
//
//	@Summary		Recent review log entries
//	@Tags			reviews
//	@Produce		json
//	@Param			limit	query		int		false	"Max entries"
//	@Param			kind	query		string	false	"Item kind"	Enums(note, card)
//	@Success		200		{object}	ReviewsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reviews [get]
func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	kind := index.ItemKind(q.Get("kind"))
	if kind != "" && kind != index.KindNote && kind != index.KindCard {
		writeError(w, "reviews", apperr.ErrInvalid)
		return
	}
	reviews, err := h.svc.Reviews(r.Context(), limit, kind)
	if err != nil {
		writeError(w, "reviews", err)
		return
	}
	if reviews == nil {
		reviews = []index.Review{}
	}
	writeJSON(w, http.StatusOK, ReviewsResponse{Reviews: reviews})
}
