package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"abbas/model"
)

var (
	// ErrUnknownParent is returned when a message names a parent that is
	// not stored.
	ErrUnknownParent = errors.New("parent message does not exist")
	ErrNotFound      = errors.New("message not found")
)

// MessageStorage keeps the conversation forest in sqlite.
type MessageStorage struct {
	db *sql.DB
}

// NewMessageStorage opens messages.db in dataDir.
func NewMessageStorage(dataDir string) (*MessageStorage, error) {
	return Open(filepath.Join(dataDir, "messages.db"))
}

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*MessageStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &MessageStorage{db: db}
	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return storage, nil
}

func (s *MessageStorage) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY,
		parent_id INTEGER REFERENCES messages(id),
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_id);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		message_id INTEGER NOT NULL REFERENCES messages(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		expression TEXT NOT NULL,
		arguments TEXT NOT NULL,
		result TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_message ON tool_calls(message_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *MessageStorage) Close() error {
	return s.db.Close()
}

// Insert stores m. Storing an existing id again updates its text only.
func (s *MessageStorage) Insert(ctx context.Context, m model.Message) error {
	return s.InsertMany(ctx, []model.Message{m})
}

// InsertMany stores ms in order within one transaction, so a message may
// name an earlier one in the same batch as its parent.
func (s *MessageStorage) InsertMany(ctx context.Context, ms []model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, m := range ms {
		if err := insertMessage(ctx, tx, m, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, m model.Message, now time.Time) error {
	if m.Parent != nil {
		if *m.Parent == m.ID {
			return fmt.Errorf("message %d: %w", m.ID, ErrUnknownParent)
		}
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, *m.Parent).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("message %d has parent %d: %w", m.ID, *m.Parent, ErrUnknownParent)
		}
		if err != nil {
			return fmt.Errorf("failed to check parent: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
	INSERT INTO messages (id, parent_id, sender, text, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET text = excluded.text
	`, m.ID, nullableID(m.Parent), m.Sender, m.Text, now)
	if err != nil {
		return fmt.Errorf("failed to insert message %d: %w", m.ID, err)
	}

	for i, tc := range m.ToolCalls {
		args, err := encodeArguments(tc.Arguments)
		if err != nil {
			return fmt.Errorf("failed to encode arguments of %s: %w", tc.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO tool_calls (id, message_id, position, name, expression, arguments, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`, tc.ID, m.ID, i, tc.Name, tc.Expression, args, tc.Result)
		if err != nil {
			return fmt.Errorf("failed to insert tool call %s: %w", tc.ID, err)
		}
	}
	return nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// FetchAncestors returns the chain from the root down to id, oldest first.
func (s *MessageStorage) FetchAncestors(ctx context.Context, id int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
	WITH RECURSIVE chain(id, parent_id, sender, text, depth) AS (
		SELECT id, parent_id, sender, text, 0 FROM messages WHERE id = ?
		UNION ALL
		SELECT m.id, m.parent_id, m.sender, m.text, chain.depth + 1
		FROM messages m JOIN chain ON m.id = chain.parent_id
	)
	SELECT id, parent_id, sender, text FROM chain ORDER BY depth DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ancestors: %w", err)
	}
	defer rows.Close()

	var chain []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}

	if err := s.attachToolCalls(ctx, chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// Get loads a single message.
func (s *MessageStorage) Get(ctx context.Context, id int64) (model.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, parent_id, sender, text FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Message{}, err
	}

	ms := []model.Message{m}
	if err := s.attachToolCalls(ctx, ms); err != nil {
		return model.Message{}, err
	}
	return ms[0], nil
}

// UpdateText replaces the text of a stored message.
func (s *MessageStorage) UpdateText(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET text = ? WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("failed to update message %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}

// MaxID returns the largest stored id, or 0 for an empty database.
func (s *MessageStorage) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM messages`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query max id: %w", err)
	}
	return id.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (model.Message, error) {
	var (
		m      model.Message
		parent sql.NullInt64
	)
	if err := row.Scan(&m.ID, &parent, &m.Sender, &m.Text); err != nil {
		return model.Message{}, err
	}
	if parent.Valid {
		p := parent.Int64
		m.Parent = &p
	}
	return m, nil
}

func (s *MessageStorage) attachToolCalls(ctx context.Context, ms []model.Message) error {
	index := make(map[int64]int, len(ms))
	placeholders := make([]string, len(ms))
	args := make([]any, len(ms))
	for i, m := range ms {
		index[m.ID] = i
		placeholders[i] = "?"
		args[i] = m.ID
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT message_id, id, name, expression, arguments, result
	FROM tool_calls
	WHERE message_id IN (`+strings.Join(placeholders, ", ")+`)
	ORDER BY message_id, position
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			tc        model.ToolCall
			rawArgs   string
		)
		if err := rows.Scan(&messageID, &tc.ID, &tc.Name, &tc.Expression, &rawArgs, &tc.Result); err != nil {
			return err
		}
		if tc.Arguments, err = decodeArguments(rawArgs); err != nil {
			return fmt.Errorf("tool call %s: %w", tc.ID, err)
		}
		i := index[messageID]
		ms[i].ToolCalls = append(ms[i].ToolCalls, tc)
	}
	return rows.Err()
}

type storedArgument struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func encodeArguments(args model.Arguments) (string, error) {
	stored := make([]storedArgument, len(args))
	for i, a := range args {
		stored[i] = storedArgument{Name: a.Name, Value: a.Value}
	}
	data, err := json.Marshal(stored)
	return string(data), err
}

// decodeArguments restores argument values, keeping integers as int64.
func decodeArguments(raw string) (model.Arguments, error) {
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var stored []storedArgument
	if err := dec.Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to decode arguments: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	args := make(model.Arguments, len(stored))
	for i, a := range stored {
		v := a.Value
		if n, ok := v.(json.Number); ok {
			if i64, err := n.Int64(); err == nil {
				v = i64
			} else if f, err := n.Float64(); err == nil {
				v = f
			}
		}
		args[i] = model.Argument{Name: a.Name, Value: v}
	}
	return args, nil
}
