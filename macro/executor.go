// Package macro runs stored command sequences against a channel.
package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"serialscope/store"
)

// ErrAborted means a send inside a macro failed; the macro stops at the
// failing command.
var ErrAborted = errors.New("macro aborted")

// Sender is the slice of the channel manager the executor needs
type Sender interface {
	Send(channelID, data, mode string) error
}

// Executor plays macros on channels: substitute parameters, send each
// command in order, honour inter-command delays, repeat.
type Executor struct {
	macros *store.MacroStore
	sender Sender
	logger *slog.Logger
}

// NewExecutor creates a macro executor
func NewExecutor(macros *store.MacroStore, sender Sender, logger *slog.Logger) *Executor {
	return &Executor{
		macros: macros,
		sender: sender,
		logger: logger,
	}
}

// Run executes the macro sequentially on the channel for its full repeat
// count. Every {{name}} placeholder in a command's data is substituted from
// params; unknown placeholders are sent literally. The delay after a
// command is observed between iterations too, but not after the very last
// command. Cancelling ctx interrupts the current delay and stops the run.
func (e *Executor) Run(ctx context.Context, macroID, channelID string, params map[string]string) error {
	m, err := e.macros.Get(macroID)
	if err != nil {
		return err
	}

	e.logger.Info("Running macro",
		"macro", m.Name,
		"channel", channelID,
		"repeat", m.RepeatCount,
		"commands", len(m.Commands))

	for iter := 0; iter < m.RepeatCount; iter++ {
		for ci, cmd := range m.Commands {
			if err := ctx.Err(); err != nil {
				return err
			}

			data := Substitute(cmd.Data, params)
			if err := e.sender.Send(channelID, data, cmd.Mode); err != nil {
				return fmt.Errorf("%w: command %d of %s: %w", ErrAborted, ci, m.Name, err)
			}

			last := iter == m.RepeatCount-1 && ci == len(m.Commands)-1
			if last || cmd.DelayMS <= 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(cmd.DelayMS) * time.Millisecond):
			}
		}
	}

	return nil
}

// Substitute replaces every {{name}} literal with its value from params.
// Placeholders with no matching parameter stay as-is.
func Substitute(data string, params map[string]string) string {
	for k, v := range params {
		data = strings.ReplaceAll(data, "{{"+k+"}}", v)
	}
	return data
}
