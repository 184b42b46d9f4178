package pdf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestBreakerEngineOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	failing := EngineFunc(func(context.Context, []byte) ([]byte, error) {
		calls++
		return nil, errors.New("browser missing")
	})

	var transitions []gobreaker.State
	engine := NewBreakerEngine(failing, BreakerSettings{
		Failures: 2,
		Cooldown: time.Hour,
		OnStateChange: func(_, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}, nil)

	for i := 0; i < 2; i++ {
		if _, err := engine.Render(context.Background(), []byte("<html></html>")); err == nil {
			t.Fatalf("expected render %d to fail", i)
		}
	}
	if engine.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker open, got %s", engine.State())
	}

	_, err := engine.Render(context.Background(), []byte("<html></html>"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable while open, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected wrapped engine to be skipped while open, got %d calls", calls)
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("expected a single transition to open, got %v", transitions)
	}
}

func TestBreakerEnginePassesThroughSuccess(t *testing.T) {
	engine := NewBreakerEngine(EngineFunc(func(_ context.Context, markup []byte) ([]byte, error) {
		return append([]byte("%PDF-"), markup...), nil
	}), BreakerSettings{}, nil)

	out, err := engine.Render(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "%PDF-x" {
		t.Fatalf("unexpected output %q", out)
	}
	if engine.State() != gobreaker.StateClosed {
		t.Fatalf("expected breaker closed, got %s", engine.State())
	}
}

func TestPaperSizeFor(t *testing.T) {
	if PaperSizeFor("Letter") != PaperLetter {
		t.Fatalf("expected letter paper")
	}
	if PaperSizeFor("A4") != PaperA4 || PaperSizeFor("") != PaperA4 {
		t.Fatalf("expected A4 default")
	}
}

func TestChromeEngineRejectsEmptyMarkup(t *testing.T) {
	engine := NewChromeEngine(WithRenderTimeout(time.Second))
	if _, err := engine.Render(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty markup")
	}
}
