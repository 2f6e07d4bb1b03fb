// Package chat answers walkthrough questions: retrieve context, prompt the
// LLM, then embed the answer's images.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/mccodeai/mmgamerag/pkg/llm"
	"github.com/mccodeai/mmgamerag/pkg/status"
)

// Flow states published on the assistant's status value.
const (
	StatusIdle           = "idle"
	StatusSearching      = "searching"
	StatusBuildingPrompt = "building prompt"
	StatusGenerating     = "generating"
	StatusFormatting     = "formatting"
	StatusDone           = "done"
	StatusFailed         = "failed"
)

const (
	ModeGraph = "graph"
	ModeQuick = "quick"
)

// ContextSource produces prompt context for a question.
type ContextSource interface {
	AssembleContext(ctx context.Context, question string) (string, error)
	QuickContext(ctx context.Context, question string) (texts, images string, err error)
}

// AnswerFormatter rewrites the raw LLM answer for display.
type AnswerFormatter interface {
	Format(ctx context.Context, raw string) string
}

type Deps struct {
	Context   ContextSource
	Provider  llm.Provider
	Formatter AnswerFormatter
	Status    *status.Value
	Logger    *slog.Logger
}

type Options struct {
	Mode            string
	SystemPrompt    string
	GraphPrompt     string
	QuickPrompt     string
	NoContentAnswer string
}

type promptData struct {
	Question string
	Context  string
	Images   string
}

type Assistant struct {
	deps      Deps
	mode      string
	system    string
	noContent string
	graphTmpl *template.Template
	quickTmpl *template.Template
}

func New(deps Deps, opts Options) (*Assistant, error) {
	if deps.Context == nil || deps.Provider == nil {
		return nil, errors.New("context source and provider are required")
	}
	if deps.Status == nil {
		deps.Status = status.NewValue(StatusIdle)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeGraph
	}
	if mode != ModeGraph && mode != ModeQuick {
		return nil, fmt.Errorf("unknown chat mode %q", mode)
	}

	graphTmpl, err := template.New("graph").Parse(opts.GraphPrompt)
	if err != nil {
		return nil, fmt.Errorf("invalid graph prompt: %w", err)
	}
	quickTmpl, err := template.New("quick").Parse(opts.QuickPrompt)
	if err != nil {
		return nil, fmt.Errorf("invalid quick prompt: %w", err)
	}

	return &Assistant{
		deps:      deps,
		mode:      mode,
		system:    opts.SystemPrompt,
		noContent: opts.NoContentAnswer,
		graphTmpl: graphTmpl,
		quickTmpl: quickTmpl,
	}, nil
}

// Status is the flow state observers can watch.
func (a *Assistant) Status() *status.Value {
	return a.deps.Status
}

func (a *Assistant) Mode() string {
	return a.mode
}

// WithMode returns a copy of the assistant answering in mode. The copy shares
// stores and status.
func (a *Assistant) WithMode(mode string) (*Assistant, error) {
	if mode == "" || mode == a.mode {
		return a, nil
	}
	if mode != ModeGraph && mode != ModeQuick {
		return nil, fmt.Errorf("unknown chat mode %q", mode)
	}
	cp := *a
	cp.mode = mode
	return &cp, nil
}

// Ask answers the question.
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	return a.AskStream(ctx, question, nil)
}

// AskStream answers the question, passing raw answer chunks to onChunk as
// they arrive. The returned answer has its images embedded.
func (a *Assistant) AskStream(ctx context.Context, question string, onChunk func(string) error) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}
	logger := a.deps.Logger.With("mode", a.mode)
	start := time.Now()

	answer, err := a.answer(ctx, question, onChunk, logger)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		a.deps.Status.Set(StatusFailed)
		logger.Error("Question failed", "error", err)
	} else {
		a.deps.Status.Set(StatusDone)
		logger.Info("Question answered", "duration", time.Since(start), "answer_len", len(answer))
	}
	questionsTotal.WithLabelValues(a.mode, outcome).Inc()
	questionDuration.WithLabelValues(a.mode).Observe(time.Since(start).Seconds())
	return answer, err
}

func (a *Assistant) answer(ctx context.Context, question string, onChunk func(string) error, logger *slog.Logger) (string, error) {
	a.deps.Status.Set(StatusSearching)
	data := promptData{Question: question}
	tmpl := a.graphTmpl
	var err error
	if a.mode == ModeQuick {
		tmpl = a.quickTmpl
		data.Context, data.Images, err = a.deps.Context.QuickContext(ctx, question)
	} else {
		data.Context, err = a.deps.Context.AssembleContext(ctx, question)
	}
	if err != nil {
		return "", fmt.Errorf("failed to build context: %w", err)
	}
	if strings.TrimSpace(data.Context) == "" && strings.TrimSpace(data.Images) == "" {
		logger.Info("No content matched question")
		if onChunk != nil {
			if err := onChunk(a.noContent); err != nil {
				return "", err
			}
		}
		return a.noContent, nil
	}

	a.deps.Status.Set(StatusBuildingPrompt)
	var prompt strings.Builder
	if err := tmpl.Execute(&prompt, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	messages := []llm.Message{llm.UserMessage(prompt.String())}
	if a.system != "" {
		messages = append([]llm.Message{llm.SystemMessage(a.system)}, messages...)
	}
	logger.Debug("Prompt built", "context_len", len(data.Context), "prompt_len", prompt.Len())

	a.deps.Status.Set(StatusGenerating)
	stream, err := a.deps.Provider.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	raw, err := llm.Collect(stream, onChunk)
	if err != nil {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}

	if a.deps.Formatter == nil {
		return raw, nil
	}
	a.deps.Status.Set(StatusFormatting)
	return a.deps.Formatter.Format(ctx, raw), nil
}
