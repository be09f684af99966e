// Package conversation persists the turns of a conversation around the
// responder: user posts, generated replies with their tool-call messages,
// and edits.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"abbas/config"
	"abbas/model"
	"abbas/responder"
)

// ErrUnknownMessage is returned when a referenced message is not stored.
var ErrUnknownMessage = errors.New("unknown message")

// Service stores and answers messages.
type Service struct {
	store     model.MessageStore
	responder *responder.Responder
	ids       *model.IDGenerator
}

// New creates a Service. ids should be the generator the responder uses,
// so tool-call messages and stored turns never share an id.
func New(store model.MessageStore, r *responder.Responder, ids *model.IDGenerator) *Service {
	if ids == nil {
		ids = model.NewIDGenerator()
	}
	return &Service{store: store, responder: r, ids: ids}
}

// Reply is a stored assistant answer.
type Reply struct {
	Message model.Message
	Result  *responder.Result
}

// Post stores a new message from sender answering parent, or a new root
// when parent is nil.
func (s *Service) Post(ctx context.Context, parent *int64, sender, text string) (model.Message, error) {
	if parent != nil {
		s.ids.Observe(*parent)
	}
	m := model.Message{
		ID:     s.ids.Next(),
		Parent: parent,
		Sender: sender,
		Text:   text,
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return model.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	return m, nil
}

// Seed stores the opening assistant message of a new conversation.
func (s *Service) Seed(ctx context.Context, text string) (model.Message, error) {
	return s.Post(ctx, nil, model.SenderAssistant, text)
}

// Reply generates and stores the assistant's answer to message to. The
// tool-call messages made along the way are stored before the answer, which
// is parented to the newest of them. Nothing is stored when generation
// fails.
func (s *Service) Reply(ctx context.Context, to int64) (*Reply, error) {
	history, err := s.store.FetchAncestors(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %d: %w", to, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("message %d: %w", to, ErrUnknownMessage)
	}
	for _, m := range history {
		s.ids.Observe(m.ID)
	}

	res, err := s.responder.Generate(ctx, model.Reversed(history))
	if err != nil {
		return nil, err
	}

	parent := to
	if len(res.Messages) > 0 {
		parent = res.Messages[0].ID
	}
	answer := model.Message{
		ID:     s.ids.Next(),
		Parent: &parent,
		Sender: model.SenderAssistant,
		Text:   res.Text,
	}

	batch := append(model.Reversed(res.Messages), answer)
	if err := s.store.InsertMany(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Conversation] Replied to %d with %d (%d tool messages, %d rounds)",
			to, answer.ID, len(res.Messages), res.Rounds)
	}
	return &Reply{Message: answer, Result: res}, nil
}

// Ask posts text from sender under parent and replies to it.
func (s *Service) Ask(ctx context.Context, parent *int64, sender, text string) (*Reply, error) {
	m, err := s.Post(ctx, parent, sender, text)
	if err != nil {
		return nil, err
	}
	return s.Reply(ctx, m.ID)
}

// Edit replaces the text of a stored message.
func (s *Service) Edit(ctx context.Context, id int64, text string) (model.Message, error) {
	chain, err := s.store.FetchAncestors(ctx, id)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to load message %d: %w", id, err)
	}
	if len(chain) == 0 {
		return model.Message{}, fmt.Errorf("message %d: %w", id, ErrUnknownMessage)
	}

	m := chain[len(chain)-1]
	m.Text = text
	if err := s.store.Insert(ctx, m); err != nil {
		return model.Message{}, fmt.Errorf("failed to update message %d: %w", id, err)
	}
	return m, nil
}

// History returns the conversation ending at id, oldest first.
func (s *Service) History(ctx context.Context, id int64) ([]model.Message, error) {
	return s.store.FetchAncestors(ctx, id)
}
