package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Command is one step of a macro: a payload, its encoding mode and the
// delay observed after sending it
type Command struct {
	Data    string `json:"data"`
	Mode    string `json:"mode"`
	DelayMS int    `json:"delayMs"`
}

// Macro is a stored, possibly parameterised command sequence. The id is
// assigned on create and immutable.
type Macro struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Commands    []Command `json:"commands"`
	RepeatCount int       `json:"repeatCount"`
	Params      []string  `json:"params,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MacroStore holds macros in memory and writes macros.json through after
// each mutation
type MacroStore struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	macros []Macro
}

// NewMacroStore loads macros.json from dataDir
func NewMacroStore(dataDir string, logger *slog.Logger) (*MacroStore, error) {
	s := &MacroStore{
		path:   filepath.Join(dataDir, "macros.json"),
		logger: logger,
	}
	if err := loadJSON(s.path, &s.macros); err != nil {
		return nil, err
	}
	logger.Info("Macro store loaded", "count", len(s.macros))
	return s, nil
}

// List returns all macros
func (s *MacroStore) List() []Macro {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Macro, len(s.macros))
	copy(out, s.macros)
	return out
}

// Get returns one macro by id
func (s *MacroStore) Get(id string) (Macro, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.macros {
		if m.ID == id {
			return m, nil
		}
	}
	return Macro{}, fmt.Errorf("%w: macro %s", ErrNotFound, id)
}

// Create assigns a fresh id and persists the macro
func (s *MacroStore) Create(m Macro) (Macro, error) {
	if err := validateMacro(&m); err != nil {
		return Macro{}, err
	}

	now := time.Now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.macros = append(s.macros, m)
	if err := saveJSON(s.path, s.macros); err != nil {
		s.macros = s.macros[:len(s.macros)-1]
		return Macro{}, err
	}
	return m, nil
}

// Update replaces the named macro's mutable fields and persists
func (s *MacroStore) Update(id string, m Macro) (Macro, error) {
	if err := validateMacro(&m); err != nil {
		return Macro{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.macros {
		if s.macros[i].ID != id {
			continue
		}
		prev := s.macros[i]
		m.ID = prev.ID
		m.CreatedAt = prev.CreatedAt
		m.UpdatedAt = time.Now().UTC()
		s.macros[i] = m
		if err := saveJSON(s.path, s.macros); err != nil {
			s.macros[i] = prev
			return Macro{}, err
		}
		return m, nil
	}
	return Macro{}, fmt.Errorf("%w: macro %s", ErrNotFound, id)
}

// Delete removes the macro and persists
func (s *MacroStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.macros {
		if s.macros[i].ID != id {
			continue
		}
		removed := s.macros[i]
		s.macros = append(s.macros[:i], s.macros[i+1:]...)
		if err := saveJSON(s.path, s.macros); err != nil {
			s.macros = append(s.macros[:i], append([]Macro{removed}, s.macros[i:]...)...)
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: macro %s", ErrNotFound, id)
}

func validateMacro(m *Macro) error {
	if m.Name == "" {
		return fmt.Errorf("macro name is required")
	}
	if len(m.Commands) == 0 {
		return fmt.Errorf("macro needs at least one command")
	}
	if m.RepeatCount < 1 {
		m.RepeatCount = 1
	}
	for i, cmd := range m.Commands {
		if cmd.DelayMS < 0 {
			return fmt.Errorf("command %d: negative delay", i)
		}
		if cmd.Mode == "" {
			m.Commands[i].Mode = "ascii"
		}
	}
	return nil
}
