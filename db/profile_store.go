package db

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"teachprep-server-go/logger"
	"teachprep-server-go/models"
)

// ProfileStore persists class profiles in one pretty-printed JSON file,
// keyed by class name. A missing or corrupt file reads as empty.
type ProfileStore struct {
	path string
	log  *logger.Logger
	mu   sync.Mutex
}

// NewProfileStore creates a store backed by the given JSON file path.
func NewProfileStore(path string, log *logger.Logger) *ProfileStore {
	return &ProfileStore{
		path: path,
		log:  log.With("service", "ProfileStore"),
	}
}

// All returns every stored class profile.
func (s *ProfileStore) All() (map[string]models.ClassProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Get returns one profile; the second value reports whether it exists.
func (s *ProfileStore) Get(className string) (models.ClassProfile, bool, error) {
	profiles, err := s.All()
	if err != nil {
		return models.ClassProfile{}, false, err
	}
	profile, ok := profiles[className]
	return profile, ok, nil
}

// Update inserts or replaces the profile for className.
func (s *ProfileStore) Update(className string, profile models.ClassProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.readLocked()
	if err != nil {
		return err
	}
	profiles[className] = profile
	return s.writeLocked(profiles)
}

// Delete removes the profile for className. Returns false when it did not
// exist (including when the backing file is missing or unreadable).
func (s *ProfileStore) Delete(className string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.readLocked()
	if err != nil {
		return false, err
	}
	if _, ok := profiles[className]; !ok {
		return false, nil
	}
	delete(profiles, className)
	if err := s.writeLocked(profiles); err != nil {
		return false, err
	}
	return true, nil
}

// ClassNames returns the stored class names sorted by length, longest
// first, which is the matching order class detection needs.
func (s *ProfileStore) ClassNames() ([]string, error) {
	profiles, err := s.All()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names, nil
}

func (s *ProfileStore) readLocked() (map[string]models.ClassProfile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.ClassProfile{}, nil
		}
		return nil, fmt.Errorf("read profiles file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string]models.ClassProfile{}, nil
	}

	profiles := map[string]models.ClassProfile{}
	if err := json.Unmarshal(data, &profiles); err != nil {
		// A damaged file should not wedge the whole feature.
		s.log.Warn("profiles file is not valid JSON, treating as empty", "path", s.path, "error", err)
		return map[string]models.ClassProfile{}, nil
	}
	return profiles, nil
}

func (s *ProfileStore) writeLocked(profiles map[string]models.ClassProfile) error {
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profiles dir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write profiles file %s: %w", s.path, err)
	}
	return nil
}
