package index

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemKind distinguishes note reviews from card reviews in the log.
type ItemKind string

const (
	KindNote ItemKind = "note"
	KindCard ItemKind = "card"
)

// Review is one entry in the review log.
type Review struct {
	ID         string    `json:"id"`
	Item       string    `json:"item"` // note path or card ID
	Kind       ItemKind  `json:"kind"`
	Response   string    `json:"response"`
	Interval   int       `json:"interval"`
	Ease       int       `json:"ease"`
	Due        string    `json:"due"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// RecordReview appends r to the review log, assigning an ID and timestamp
// when they are unset.
func (db *DB) RecordReview(r Review) (Review, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ReviewedAt.IsZero() {
		r.ReviewedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO reviews (id, item, kind, response, interval, ease, due, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Item, string(r.Kind), r.Response, r.Interval, r.Ease, r.Due, r.ReviewedAt.UTC())
	if err != nil {
		return Review{}, fmt.Errorf("index: record review: %w", err)
	}
	return r, nil
}

// RecentReviews returns up to limit log entries, newest first. An empty
// kind returns both notes and cards.
func (db *DB) RecentReviews(limit int, kind ItemKind) ([]Review, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, item, kind, response, interval, ease, due, reviewed_at
		FROM reviews
		WHERE ? = '' OR kind = ?
		ORDER BY reviewed_at DESC, rowid DESC
		LIMIT ?
	`, string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("index: recent reviews: %w", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var r Review
		var k string
		if err := rows.Scan(&r.ID, &r.Item, &k, &r.Response, &r.Interval, &r.Ease, &r.Due, &r.ReviewedAt); err != nil {
			return nil, err
		}
		r.Kind = ItemKind(k)
		out = append(out, r)
	}
	return out, rows.Err()
}
