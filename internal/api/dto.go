package api

import (
	"github.com/starford/recall/internal/cards"
	"github.com/starford/recall/internal/index"
	"github.com/starford/recall/internal/review"
	"github.com/starford/recall/internal/reviewservice"
	"github.com/starford/recall/internal/schedule"
)

// ReviewRequest is the request body for reviewing a note or card.
type ReviewRequest struct {
	Response schedule.Response `json:"response" example:"Good" validate:"required"`
}

// RankedNote is a note with its importance score.
type RankedNote struct {
	Path  string  `json:"path" example:"topics/graphs.md" validate:"required"`
	Score float64 `json:"score" example:"412.5" validate:"required"`
}

// QueueResponse describes the current review queues.
type QueueResponse struct {
	Stats     review.Stats  `json:"stats" validate:"required"`
	NotesDue  []review.Note `json:"notes_due" validate:"required"`
	NotesNew  []review.Note `json:"notes_new" validate:"required"`
	Upcoming  []review.Note `json:"upcoming" validate:"required"`
	TopRanked []RankedNote  `json:"top_ranked" validate:"required"`
}

// PreviewResponse lists the outcome of each possible response.
type PreviewResponse struct {
	Path     string                  `json:"path" validate:"required"`
	Previews []reviewservice.Preview `json:"previews" validate:"required"`
}

// ReviewsResponse wraps review log entries.
type ReviewsResponse struct {
	Reviews []index.Review `json:"reviews" validate:"required"`
}

// NoteResult is the note review response (aliased from the domain layer).
type NoteResult = reviewservice.NoteResult

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = reviewservice.NoteDetail

// CardResult is the card review response (aliased from the domain layer).
type CardResult = reviewservice.CardResult

// Card is a flash-card as returned by the API.
type Card = cards.Card

// SyncReport is the sync response (aliased from the domain layer).
type SyncReport = reviewservice.SyncReport
