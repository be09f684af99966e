package storage

import (
	"context"
	"fmt"
	"strings"
)

// MessageMatch is a stored message whose text contains a search query.
type MessageMatch struct {
	ID      int64
	Parent  *int64
	Sender  string
	Text    string
	Preview string
}

const previewLength = 100

// Search finds messages containing query, case-insensitively, newest
// first. System turns are skipped. limit <= 0 means no limit.
func (s *MessageStorage) Search(ctx context.Context, query string, limit int) ([]MessageMatch, error) {
	if query == "" {
		return []MessageMatch{}, nil
	}

	q := `
	SELECT id, parent_id, sender, text FROM messages
	WHERE sender != 'system' AND lower(text) LIKE ? ESCAPE '\'
	ORDER BY id DESC`
	args := []any{"%" + escapeLike(strings.ToLower(query)) + "%"}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	matches := []MessageMatch{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, MessageMatch{
			ID:      m.ID,
			Parent:  m.Parent,
			Sender:  m.Sender,
			Text:    m.Text,
			Preview: preview(m.Text),
		})
	}
	return matches, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return text
}
