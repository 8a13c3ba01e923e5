package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"adspilot/internal/api"
	"adspilot/internal/events"
)

// streamFailureText replaces the assistant turn when a chat stream fails.
const streamFailureText = "❌ Erro ao conectar com a IA. Tente novamente."

var (
	// ErrEmptyMessage rejects a submit with no text. A boundary no-op, not a
	// user-facing fault.
	ErrEmptyMessage = errors.New("empty message")
	// ErrBusy rejects a submit or analysis while a stream is active.
	ErrBusy = errors.New("a response is already streaming")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation transcript. User turns are immutable
// once appended; only the most recent assistant turn grows while its stream
// is active.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Backend is the slice of the API client the session needs.
type Backend interface {
	Chat(ctx context.Context, message string, accountIDs []string) (io.ReadCloser, error)
	Analyze(ctx context.Context, req api.AnalyzeRequest) (*api.AnalysisResult, error)
}

// History receives finalized turns for local persistence. Optional.
type History interface {
	SaveTurn(role, content string, at time.Time) error
}

// Session is an ordered transcript of turns plus the idle/streaming state
// machine around the chat endpoint.
type Session struct {
	backend    Backend
	bus        *events.Bus
	history    History
	accountIDs []string
	logger     *slog.Logger

	mu        sync.Mutex
	turns     []Turn
	streaming bool
	onUpdate  func()
}

func NewSession(backend Backend, bus *events.Bus, history History, accountIDs []string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		backend:    backend,
		bus:        bus,
		history:    history,
		accountIDs: accountIDs,
		logger:     logger,
	}
}

// SetOnUpdate registers a hook invoked after every transcript change. Used by
// the TUI to repaint; must not block.
func (s *Session) SetOnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Streaming reports whether a chat stream is active.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Submit sends a user message and blocks until the answering stream ends.
// The user turn and an empty assistant turn are appended immediately; the
// assistant turn fills in fragment by fragment. While a stream is active
// further submits are refused with ErrBusy.
//
// A streamed answer may have created proposals server-side, so completion
// publishes the pending-list and pending-count invalidations. Failure
// replaces the assistant content with a fixed message and publishes nothing.
func (s *Session) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	now := time.Now()
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrBusy
	}
	s.streaming = true
	s.turns = append(s.turns,
		Turn{Role: RoleUser, Content: text, CreatedAt: now},
		Turn{Role: RoleAssistant, CreatedAt: now},
	)
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("chat submit", "chars", len(text))

	body, err := s.backend.Chat(ctx, text, s.accountIDs)
	if err != nil {
		s.finishWithFailure()
		return fmt.Errorf("opening chat stream: %w", err)
	}
	defer body.Close()

	streamErr := Assemble(ctx, body, s.appendFragment)
	if streamErr != nil {
		s.finishWithFailure()
		return streamErr
	}

	s.finalize()

	s.bus.Publish(events.TopicPendingList)
	s.bus.Publish(events.TopicPendingCount)

	return nil
}

// Analyze runs the one-shot full analysis. It bypasses the stream entirely:
// a synthetic user turn describing the trigger and a complete assistant turn
// are appended on success. Refused while a stream is active.
func (s *Session) Analyze(ctx context.Context, req api.AnalyzeRequest) (*api.AnalysisResult, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.mu.Unlock()

	result, err := s.backend.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	period := strings.ToLower(api.DatePresetLabels[req.DatePreset])
	if period == "" {
		period = "período padrão"
	}
	userText := fmt.Sprintf("🤖 Análise automática de todas as campanhas (%s)", period)

	now := time.Now()
	s.mu.Lock()
	s.turns = append(s.turns,
		Turn{Role: RoleUser, Content: userText, CreatedAt: now},
		Turn{Role: RoleAssistant, Content: result.Analysis, CreatedAt: now},
	)
	s.mu.Unlock()
	s.notify()

	s.saveTurn(RoleUser, userText, now)
	s.saveTurn(RoleAssistant, result.Analysis, now)

	if result.SuggestionsCreated > 0 {
		s.bus.Publish(events.TopicPendingList)
		s.bus.Publish(events.TopicPendingCount)
	}

	return result, nil
}

func (s *Session) appendFragment(fragment string) {
	s.mu.Lock()
	if last := len(s.turns) - 1; last >= 0 && s.turns[last].Role == RoleAssistant {
		s.turns[last].Content += fragment
	}
	s.mu.Unlock()
	s.notify()
}

// finishWithFailure closes out a failed stream: the assistant content is
// replaced, not appended to, so partial output never lingers under the error.
func (s *Session) finishWithFailure() {
	s.mu.Lock()
	s.streaming = false
	if last := len(s.turns) - 1; last >= 0 && s.turns[last].Role == RoleAssistant {
		s.turns[last].Content = streamFailureText
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) finalize() {
	s.mu.Lock()
	s.streaming = false
	var user, assistant *Turn
	if n := len(s.turns); n >= 2 {
		user, assistant = &s.turns[n-2], &s.turns[n-1]
	}
	var saved [2]Turn
	if user != nil {
		saved[0], saved[1] = *user, *assistant
	}
	s.mu.Unlock()
	s.notify()

	if user != nil {
		s.saveTurn(saved[0].Role, saved[0].Content, saved[0].CreatedAt)
		s.saveTurn(saved[1].Role, saved[1].Content, saved[1].CreatedAt)
	}
}

func (s *Session) saveTurn(role Role, content string, at time.Time) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveTurn(string(role), content, at); err != nil {
		s.logger.Error("saving turn to history", "error", err)
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
