// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes review tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/recall/internal/apperr"
	"github.com/starford/recall/internal/reviewservice"
	"github.com/starford/recall/internal/schedule"
)

const contractURI = "recall://review-format"

// Server wraps the MCP server with review tools.
type Server struct {
	mcp *server.MCPServer
	svc *reviewservice.Service
}

// New creates a new MCP server with all review tools registered.
func New(svc *reviewservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Recall",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	responseArg := mcp.WithString("response", mcp.Required(),
		mcp.Description("How well the item was recalled"),
		mcp.Enum("Hard", "Good", "Easy"),
	)

	s.mcp.AddTool(mcp.NewTool("review_queue",
		mcp.WithDescription("Summarize the review queues: due and new notes, card counts and the most important notes."),
		mcp.WithNumber("top", mcp.Description("Number of top ranked notes to include (default 10)")),
	), s.reviewQueue)

	s.mcp.AddTool(mcp.NewTool("next_note",
		mcp.WithDescription("Return the next note to review together with its content."),
	), s.nextNote)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its schedule, importance score and backlinks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("preview_note",
		mcp.WithDescription("Show the interval and ease each response would give a queued note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.previewNote)

	s.mcp.AddTool(mcp.NewTool("review_note",
		mcp.WithDescription("Record a review of a queued note. The new schedule is written to the note's frontmatter."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		responseArg,
	), s.reviewNote)

	s.mcp.AddTool(mcp.NewTool("next_card",
		mcp.WithDescription("Return the next flash-card to review. Show the front first, then the back."),
	), s.nextCard)

	s.mcp.AddTool(mcp.NewTool("review_card",
		mcp.WithDescription("Record a review of a flash-card. The card's review comment is rewritten in its deck."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card ID as returned by next_card")),
		responseArg,
	), s.reviewCard)

	s.mcp.AddTool(mcp.NewTool("sync_vault",
		mcp.WithDescription("Reindex the vault and rebuild the review queues."),
	), s.syncVault)

	s.mcp.AddTool(mcp.NewTool("get_review_format",
		mcp.WithDescription("Returns how notes and flash-cards store their review state. "+
			"Call this before writing cards or editing review frontmatter."),
	), s.getReviewFormat)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Review Format",
			mcp.WithResourceDescription("How review state is stored in notes and flash-cards."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReviewFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrQueueEmpty):
		return mcp.NewToolResultText("nothing left to review")
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("the file changed on disk; run sync_vault and try again")
	}
	return mcp.NewToolResultError(err.Error())
}

func parseResponse(req mcp.CallToolRequest) (schedule.Response, error) {
	raw, err := req.RequireString("response")
	if err != nil {
		return 0, err
	}
	return schedule.ParseResponse(raw)
}

type queueSummary struct {
	NotesDue  int      `json:"notes_due"`
	NotesNew  int      `json:"notes_new"`
	CardsDue  int      `json:"cards_due"`
	CardsNew  int      `json:"cards_new"`
	Due       []string `json:"due"`
	TopRanked []string `json:"top_ranked"`
}

func (s *Server) reviewQueue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	top := req.GetInt("top", 10)
	if top < 0 {
		return mcp.NewToolResultError("top must not be negative"), nil
	}
	q := s.svc.Queue(ctx)
	stats := q.Stats()
	sum := queueSummary{
		NotesDue:  stats.NotesDue,
		NotesNew:  stats.NotesNew,
		CardsDue:  stats.CardsDue,
		CardsNew:  stats.CardsNew,
		Due:       []string{},
		TopRanked: q.TopRanked(top),
	}
	for _, n := range q.NotesDue[:q.DueCount] {
		sum.Due = append(sum.Due, n.Path)
	}
	return jsonResult(sum)
}

func (s *Server) nextNote(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.NextNote(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	detail, err := s.svc.Note(ctx, n.Path)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(detail)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Note(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return errorResult(err), nil
	}
	return jsonResult(detail)
}

func (s *Server) previewNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	previews, err := s.svc.PreviewNote(ctx, path)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(previews)
}

func (s *Server) reviewNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := parseResponse(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ReviewNote(ctx, path, resp)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s, next review %s (interval %d, ease %d)",
		path, resp, schedule.FormatDue(res.Schedule.Due), res.Schedule.Interval, res.Schedule.Ease)), nil
}

func (s *Server) nextCard(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := s.svc.NextCard(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(c)
}

func (s *Server) reviewCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := parseResponse(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ReviewCard(ctx, id, resp)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("card %s: %s, next review %s (interval %d, ease %d)",
		id, resp, schedule.FormatDue(res.Schedule.Due), res.Schedule.Interval, res.Schedule.Ease)), nil
}

func (s *Server) syncVault(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Sync(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(rep)
}

func (s *Server) getReviewFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ReviewFormatContract), nil
}

func (s *Server) readReviewFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ReviewFormatContract,
		},
	}, nil
}
