package output

import (
	"log/slog"
	"testing"

	"serialscope/bus"
	"serialscope/models"
)

func TestNewMirrorDisabledWithoutURL(t *testing.T) {
	m, err := NewMirror("", "serialscope", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewMirror() error = %v", err)
	}
	if m != nil {
		t.Fatal("NewMirror() should return nil in disabled mode")
	}

	// Nil-safe lifecycle
	b := bus.New(slog.New(slog.DiscardHandler))
	m.Start(b)
	m.Stop()
}

func TestTranslateSubjects(t *testing.T) {
	m := &Mirror{prefix: "serialscope"}

	tests := []struct {
		name    string
		ev      bus.Event
		subject string
	}{
		{"line", bus.LineEvent{ChannelID: "a", Entry: models.LineEntry{Data: "x"}}, "serialscope.lines.a"},
		{"connected", bus.ConnectedEvent{ChannelID: "a"}, "serialscope.events.a"},
		{"disconnected", bus.DisconnectedEvent{ChannelID: "b"}, "serialscope.events.b"},
		{"error", bus.ErrorEvent{ChannelID: "a", Message: "EIO"}, "serialscope.events.a"},
		{"cleared", bus.ClearedEvent{ChannelID: "a"}, "serialscope.events.a"},
		{"ports", bus.PortsChangedEvent{}, "serialscope.ports"},
		{"raw not mirrored", bus.RawDataEvent{ChannelID: "a"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, subject := m.translate(tt.ev)
			if subject != tt.subject {
				t.Errorf("subject = %q, want %q", subject, tt.subject)
			}
			if subject != "" && env.Type != tt.ev.Kind() {
				t.Errorf("envelope type = %q, want %q", env.Type, tt.ev.Kind())
			}
		})
	}
}

func TestTranslateCarriesPayloads(t *testing.T) {
	m := &Mirror{prefix: "p"}

	env, _ := m.translate(bus.LineEvent{
		ChannelID: "a",
		Entry:     models.LineEntry{Data: "hello", Index: 7},
		Decoded:   []models.DecodedFrame{{Protocol: "Modbus RTU"}},
	})
	if env.Line == nil || env.Line.Data != "hello" || env.Line.Index != 7 {
		t.Errorf("Line = %+v", env.Line)
	}
	if len(env.Decoded) != 1 {
		t.Errorf("Decoded = %+v", env.Decoded)
	}

	env, _ = m.translate(bus.ErrorEvent{ChannelID: "a", Message: "device gone"})
	if env.Error != "device gone" {
		t.Errorf("Error = %q", env.Error)
	}
}
