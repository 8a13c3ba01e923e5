package chat_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"adspilot/internal/api"
	"adspilot/internal/chat"
	"adspilot/internal/events"
)

type fakeBackend struct {
	mu       sync.Mutex
	chatBody io.ReadCloser
	chatErr  error
	analysis *api.AnalysisResult
	chats    []string
}

func (f *fakeBackend) Chat(ctx context.Context, message string, accountIDs []string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.chats = append(f.chats, message)
	f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatBody, nil
}

func (f *fakeBackend) Analyze(ctx context.Context, req api.AnalyzeRequest) (*api.AnalysisResult, error) {
	return f.analysis, nil
}

type memHistory struct {
	mu    sync.Mutex
	turns []string
}

func (m *memHistory) SaveTurn(role, content string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, role+": "+content)
	return nil
}

func countPublishes(bus *events.Bus, topic events.Topic) *int {
	n := new(int)
	bus.Subscribe(topic, func() { *n++ })
	return n
}

func TestSession_SubmitAssemblesAnswer(t *testing.T) {
	stream := "data: Sua\ndata:  resposta\ndata: [DONE]\n"
	backend := &fakeBackend{chatBody: io.NopCloser(strings.NewReader(stream))}
	bus := events.NewBus()
	hist := &memHistory{}
	listInvalidations := countPublishes(bus, events.TopicPendingList)
	countInvalidations := countPublishes(bus, events.TopicPendingCount)

	s := chat.NewSession(backend, bus, hist, nil, nil)

	if err := s.Submit(context.Background(), "Quais campanhas estão com ROAS abaixo de 1?"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != chat.RoleUser || turns[0].Content != "Quais campanhas estão com ROAS abaixo de 1?" {
		t.Errorf("user turn: %+v", turns[0])
	}
	if turns[1].Role != chat.RoleAssistant || turns[1].Content != "Sua resposta" {
		t.Errorf("assistant turn: %+v", turns[1])
	}
	if s.Streaming() {
		t.Error("session still streaming after completion")
	}
	if *listInvalidations != 1 || *countInvalidations != 1 {
		t.Errorf("expected one invalidation per topic, got list=%d count=%d", *listInvalidations, *countInvalidations)
	}
	if len(hist.turns) != 2 {
		t.Errorf("expected both turns persisted, got %v", hist.turns)
	}
}

func TestSession_SubmitTrimsAndRejectsEmpty(t *testing.T) {
	s := chat.NewSession(&fakeBackend{}, events.NewBus(), nil, nil, nil)

	if err := s.Submit(context.Background(), "   \n\t"); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(s.Turns()) != 0 {
		t.Error("empty submit must not touch the transcript")
	}
}

func TestSession_ConnectFailureWritesFixedText(t *testing.T) {
	backend := &fakeBackend{chatErr: errors.New("dial tcp: connection refused")}
	bus := events.NewBus()
	listInvalidations := countPublishes(bus, events.TopicPendingList)

	s := chat.NewSession(backend, bus, nil, nil, nil)

	if err := s.Submit(context.Background(), "oi"); err == nil {
		t.Fatal("expected an error")
	}

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected user + failed assistant turns, got %d", len(turns))
	}
	if turns[1].Content != "❌ Erro ao conectar com a IA. Tente novamente." {
		t.Errorf("assistant content %q", turns[1].Content)
	}
	if s.Streaming() {
		t.Error("session stuck streaming after failure")
	}
	if *listInvalidations != 0 {
		t.Error("failed stream must not publish invalidations")
	}
}

func TestSession_StreamErrorReplacesPartialOutput(t *testing.T) {
	r := &failReader{data: "data: parcial\n", err: errors.New("connection reset")}
	backend := &fakeBackend{chatBody: io.NopCloser(r)}

	s := chat.NewSession(backend, events.NewBus(), nil, nil, nil)

	if err := s.Submit(context.Background(), "oi"); err == nil {
		t.Fatal("expected an error")
	}

	turns := s.Turns()
	if got := turns[len(turns)-1].Content; got != "❌ Erro ao conectar com a IA. Tente novamente." {
		t.Errorf("partial output should be replaced, got %q", got)
	}
}

func TestSession_SubmitWhileStreamingIsBusy(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeBackend{chatBody: pr}
	s := chat.NewSession(backend, events.NewBus(), nil, nil, nil)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- s.Submit(context.Background(), "primeira")
	}()

	<-started
	for !s.Streaming() {
		time.Sleep(time.Millisecond)
	}

	if err := s.Submit(context.Background(), "segunda"); !errors.Is(err, chat.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	pw.Write([]byte("data: ok\ndata: [DONE]\n"))
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("busy submit must not append turns, got %d", len(turns))
	}
}

func TestSession_AnalyzePublishesOnlyWhenSuggestionsCreated(t *testing.T) {
	backend := &fakeBackend{analysis: &api.AnalysisResult{Analysis: "Tudo certo.", SuggestionsCreated: 0}}
	bus := events.NewBus()
	listInvalidations := countPublishes(bus, events.TopicPendingList)

	s := chat.NewSession(backend, bus, nil, nil, nil)

	result, err := s.Analyze(context.Background(), api.AnalyzeRequest{DatePreset: "last_7d"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.SuggestionsCreated != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if *listInvalidations != 0 {
		t.Error("no suggestions created, nothing should be invalidated")
	}

	backend.analysis = &api.AnalysisResult{Analysis: "Pausar 2 campanhas.", SuggestionsCreated: 2}
	if _, err := s.Analyze(context.Background(), api.AnalyzeRequest{DatePreset: "last_7d"}); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if *listInvalidations != 1 {
		t.Errorf("expected one invalidation, got %d", *listInvalidations)
	}

	turns := s.Turns()
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	if turns[2].Content != "🤖 Análise automática de todas as campanhas (últimos 7 dias)" {
		t.Errorf("synthetic user turn %q", turns[2].Content)
	}
	if turns[3].Content != "Pausar 2 campanhas." {
		t.Errorf("assistant turn %q", turns[3].Content)
	}
}

func TestSession_OnUpdateFiresDuringStream(t *testing.T) {
	stream := "data: a\ndata: b\ndata: [DONE]\n"
	backend := &fakeBackend{chatBody: io.NopCloser(strings.NewReader(stream))}
	s := chat.NewSession(backend, events.NewBus(), nil, nil, nil)

	var mu sync.Mutex
	updates := 0
	s.SetOnUpdate(func() {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	if err := s.Submit(context.Background(), "oi"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// submit append + two fragments + finalize
	if updates < 4 {
		t.Errorf("expected at least 4 update notifications, got %d", updates)
	}
}
