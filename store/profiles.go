package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"serialscope/config"
)

// Profile is a named, saved port configuration preset
type Profile struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Config    config.PortConfig `json:"config"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ProfileStore holds profiles in memory and writes profiles.json through
// after each mutation
type ProfileStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	profiles []Profile
}

// NewProfileStore loads profiles.json from dataDir
func NewProfileStore(dataDir string, logger *slog.Logger) (*ProfileStore, error) {
	s := &ProfileStore{
		path:   filepath.Join(dataDir, "profiles.json"),
		logger: logger,
	}
	if err := loadJSON(s.path, &s.profiles); err != nil {
		return nil, err
	}
	logger.Info("Profile store loaded", "count", len(s.profiles))
	return s, nil
}

// List returns all profiles
func (s *ProfileStore) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// Get returns one profile by id
func (s *ProfileStore) Get(id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, id)
}

// Create assigns a fresh id and persists the profile. The stored config is
// fully populated so a later connect needs no defaulting.
func (s *ProfileStore) Create(p Profile) (Profile, error) {
	if p.Name == "" {
		return Profile{}, fmt.Errorf("profile name is required")
	}
	p.Config = config.ApplyPortDefaults(p.Config)

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, p)
	if err := saveJSON(s.path, s.profiles); err != nil {
		s.profiles = s.profiles[:len(s.profiles)-1]
		return Profile{}, err
	}
	return p, nil
}

// Update replaces the named profile and persists
func (s *ProfileStore) Update(id string, p Profile) (Profile, error) {
	if p.Name == "" {
		return Profile{}, fmt.Errorf("profile name is required")
	}
	p.Config = config.ApplyPortDefaults(p.Config)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.profiles {
		if s.profiles[i].ID != id {
			continue
		}
		prev := s.profiles[i]
		p.ID = prev.ID
		p.CreatedAt = prev.CreatedAt
		p.UpdatedAt = time.Now().UTC()
		s.profiles[i] = p
		if err := saveJSON(s.path, s.profiles); err != nil {
			s.profiles[i] = prev
			return Profile{}, err
		}
		return p, nil
	}
	return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, id)
}

// Delete removes the profile and persists
func (s *ProfileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.profiles {
		if s.profiles[i].ID != id {
			continue
		}
		removed := s.profiles[i]
		s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
		if err := saveJSON(s.path, s.profiles); err != nil {
			s.profiles = append(s.profiles[:i], append([]Profile{removed}, s.profiles[i:]...)...)
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: profile %s", ErrNotFound, id)
}
