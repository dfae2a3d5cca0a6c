package macro

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"serialscope/store"
)

type sentCommand struct {
	channelID string
	data      string
	mode      string
}

// recordingSender captures sends and can fail from a given call onward
type recordingSender struct {
	mu       sync.Mutex
	sent     []sentCommand
	failFrom int // 0 = never fail
	err      error
}

func (r *recordingSender) Send(channelID, data, mode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFrom > 0 && len(r.sent)+1 >= r.failFrom {
		return r.err
	}
	r.sent = append(r.sent, sentCommand{channelID, data, mode})
	return nil
}

func (r *recordingSender) commands() []sentCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentCommand, len(r.sent))
	copy(out, r.sent)
	return out
}

func newExecutorHarness(t *testing.T, m store.Macro) (*Executor, *recordingSender, string) {
	t.Helper()
	macros, err := store.NewMacroStore(t.TempDir(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	created, err := macros.Create(m)
	if err != nil {
		t.Fatal(err)
	}
	sender := &recordingSender{}
	return NewExecutor(macros, sender, slog.New(slog.DiscardHandler)), sender, created.ID
}

func TestRunSubstitutesParamsAndRepeats(t *testing.T) {
	exec, sender, id := newExecutorHarness(t, store.Macro{
		Name: "setup",
		Commands: []store.Command{
			{Data: "SET {{x}}", Mode: "ascii", DelayMS: 10},
			{Data: "GO", Mode: "ascii"},
		},
		RepeatCount: 2,
	})

	start := time.Now()
	if err := exec.Run(context.Background(), id, "a", map[string]string{"x": "42"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := sender.commands()
	want := []string{"SET 42", "GO", "SET 42", "GO"}
	if len(got) != len(want) {
		t.Fatalf("sent %d commands, want %d", len(got), len(want))
	}
	for i, cmd := range got {
		if cmd.data != want[i] {
			t.Errorf("command %d = %q, want %q", i, cmd.data, want[i])
		}
		if cmd.channelID != "a" || cmd.mode != "ascii" {
			t.Errorf("command %d routed as %+v", i, cmd)
		}
	}

	// Two non-final 10ms delays were observed
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("run finished in %v, want at least the configured delays", elapsed)
	}
}

func TestRunLeavesUnknownPlaceholdersLiteral(t *testing.T) {
	exec, sender, id := newExecutorHarness(t, store.Macro{
		Name:        "probe",
		Commands:    []store.Command{{Data: "GET {{missing}}", Mode: "ascii"}},
		RepeatCount: 1,
	})

	if err := exec.Run(context.Background(), id, "a", nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := sender.commands()
	if len(got) != 1 || got[0].data != "GET {{missing}}" {
		t.Errorf("sent = %+v, want literal placeholder", got)
	}
}

func TestRunAbortsOnSendFailure(t *testing.T) {
	exec, sender, id := newExecutorHarness(t, store.Macro{
		Name: "fragile",
		Commands: []store.Command{
			{Data: "ONE", Mode: "ascii"},
			{Data: "TWO", Mode: "ascii"},
			{Data: "THREE", Mode: "ascii"},
		},
		RepeatCount: 1,
	})
	sender.failFrom = 2
	sender.err = errors.New("channel not connected")

	err := exec.Run(context.Background(), id, "a", nil)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Run() error = %v, want ErrAborted", err)
	}
	if got := sender.commands(); len(got) != 1 {
		t.Errorf("sent %d commands after failure, want 1", len(got))
	}
}

func TestRunUnknownMacro(t *testing.T) {
	exec, _, _ := newExecutorHarness(t, store.Macro{
		Name:        "any",
		Commands:    []store.Command{{Data: "x", Mode: "ascii"}},
		RepeatCount: 1,
	})

	if err := exec.Run(context.Background(), "no-such-id", "a", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Run() error = %v, want ErrNotFound", err)
	}
}

func TestRunCancellationInterruptsDelay(t *testing.T) {
	exec, sender, id := newExecutorHarness(t, store.Macro{
		Name: "slow",
		Commands: []store.Command{
			{Data: "ONE", Mode: "ascii", DelayMS: 10_000},
			{Data: "TWO", Mode: "ascii"},
		},
		RepeatCount: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exec.Run(ctx, id, "a", nil) }()

	// Let the first command go out, then cancel mid-delay
	deadline := time.After(2 * time.Second)
	for len(sender.commands()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first command never sent")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if got := sender.commands(); len(got) != 1 {
		t.Errorf("sent %d commands, want 1; cancellation must stop further sends", len(got))
	}
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		params map[string]string
		want   string
	}{
		{"single", "SET {{x}}", map[string]string{"x": "42"}, "SET 42"},
		{"repeated", "{{a}}+{{a}}", map[string]string{"a": "1"}, "1+1"},
		{"multiple", "{{a}} {{b}}", map[string]string{"a": "x", "b": "y"}, "x y"},
		{"unknown literal", "GET {{gone}}", map[string]string{"x": "1"}, "GET {{gone}}"},
		{"nil params", "GET {{x}}", nil, "GET {{x}}"},
		{"no placeholders", "plain", map[string]string{"x": "1"}, "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.data, tt.params); got != tt.want {
				t.Errorf("Substitute() = %q, want %q", got, tt.want)
			}
		})
	}
}
