package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/mccodeai/mmgamerag/pkg/llm"
	"github.com/mccodeai/mmgamerag/pkg/status"
)

type stubContext struct {
	graph  string
	texts  string
	images string
	err    error
}

func (s *stubContext) AssembleContext(context.Context, string) (string, error) {
	return s.graph, s.err
}

func (s *stubContext) QuickContext(context.Context, string) (string, string, error) {
	return s.texts, s.images, s.err
}

type sliceStream struct {
	chunks []string
}

func (s *sliceStream) Recv() (llm.Chunk, error) {
	if len(s.chunks) == 0 {
		return llm.Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return llm.Chunk{Content: c}, nil
}

func (s *sliceStream) Close() error { return nil }

type stubProvider struct {
	chunks   []string
	err      error
	messages []llm.Message
	calls    int
}

func (p *stubProvider) Complete(_ context.Context, messages []llm.Message) (llm.Stream, error) {
	p.calls++
	p.messages = messages
	if p.err != nil {
		return nil, p.err
	}
	return &sliceStream{chunks: append([]string(nil), p.chunks...)}, nil
}

type upperFormatter struct{}

func (upperFormatter) Format(_ context.Context, raw string) string { return strings.ToUpper(raw) }

func newAssistant(t *testing.T, src ContextSource, p llm.Provider, mode string) *Assistant {
	t.Helper()

	a, err := New(Deps{Context: src, Provider: p, Formatter: upperFormatter{}}, Options{
		Mode:            mode,
		SystemPrompt:    "system",
		GraphPrompt:     "Q={{.Question}} C={{.Context}}",
		QuickPrompt:     "Q={{.Question}} C={{.Context}} I={{.Images}}",
		NoContentAnswer: "nothing found",
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return a
}

func TestAsk_GraphMode(t *testing.T) {
	p := &stubProvider{chunks: []string{"dodge ", "left"}}
	a := newAssistant(t, &stubContext{graph: "ctx"}, p, ModeGraph)

	var mu sync.Mutex
	var transitions []string
	a.Status().Subscribe(func(_, s string) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	var chunks []string
	got, err := a.AskStream(context.Background(), "how to beat the boss?", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("AskStream() failed: %v", err)
	}
	if got != "DODGE LEFT" {
		t.Errorf("AskStream() = %q, want formatted answer", got)
	}
	if strings.Join(chunks, "") != "dodge left" {
		t.Errorf("chunks = %v", chunks)
	}
	if len(p.messages) != 2 || p.messages[0].Role != "system" {
		t.Fatalf("messages = %+v", p.messages)
	}
	if p.messages[1].Content != "Q=how to beat the boss? C=ctx" {
		t.Errorf("prompt = %q", p.messages[1].Content)
	}

	want := []string{StatusSearching, StatusBuildingPrompt, StatusGenerating, StatusFormatting, StatusDone}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestAsk_QuickMode(t *testing.T) {
	p := &stubProvider{chunks: []string{"ok"}}
	a := newAssistant(t, &stubContext{texts: "t", images: "i"}, p, ModeQuick)

	if _, err := a.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask() failed: %v", err)
	}
	if p.messages[1].Content != "Q=q C=t I=i" {
		t.Errorf("prompt = %q", p.messages[1].Content)
	}
}

func TestAsk_NoContent(t *testing.T) {
	p := &stubProvider{}
	a := newAssistant(t, &stubContext{}, p, ModeGraph)

	got, err := a.Ask(context.Background(), "q")
	if err != nil {
		t.Fatalf("Ask() failed: %v", err)
	}
	if got != "nothing found" {
		t.Errorf("Ask() = %q, want no-content answer", got)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times, want 0", p.calls)
	}
	if a.Status().Get() != StatusDone {
		t.Errorf("status = %q, want %q", a.Status().Get(), StatusDone)
	}
}

func TestAsk_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      *stubContext
		provider *stubProvider
		question string
	}{
		{"empty question", &stubContext{graph: "c"}, &stubProvider{}, "  "},
		{"context error", &stubContext{err: errors.New("store down")}, &stubProvider{}, "q"},
		{"provider error", &stubContext{graph: "c"}, &stubProvider{err: errors.New("401")}, "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAssistant(t, tt.src, tt.provider, ModeGraph)
			if _, err := a.Ask(context.Background(), tt.question); err == nil {
				t.Fatal("Ask() should fail")
			}
		})
	}
}

func TestWithMode(t *testing.T) {
	a := newAssistant(t, &stubContext{}, &stubProvider{}, ModeGraph)

	q, err := a.WithMode(ModeQuick)
	if err != nil {
		t.Fatalf("WithMode() failed: %v", err)
	}
	if q.Mode() != ModeQuick || a.Mode() != ModeGraph {
		t.Errorf("modes = %q/%q", q.Mode(), a.Mode())
	}
	if q.Status() != a.Status() {
		t.Error("copies should share status")
	}
	if _, err := a.WithMode("fuzzy"); err == nil {
		t.Error("WithMode() should reject unknown modes")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Error("New() without deps should fail")
	}
	_, err := New(Deps{Context: &stubContext{}, Provider: &stubProvider{}, Status: status.NewValue("")}, Options{GraphPrompt: "{{.Broken"})
	if err == nil {
		t.Error("New() with a bad template should fail")
	}
}
