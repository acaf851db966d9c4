// Package favorites stores user-pinned commands in a YAML file.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// ErrNotFound is returned by Remove for unknown names.
var ErrNotFound = errors.New("favorite not found")

// DefaultPath is ~/.shai-bridge/favorites.yaml.
func DefaultPath() string {
	return filesystem.AppPath("favorites.yaml")
}

type document struct {
	Favorites []domain.Favorite `yaml:"favorites"`
}

// YAMLStore keeps favorites in a single YAML document, rewritten on every change.
type YAMLStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewYAMLStore creates a store at path ("" means DefaultPath).
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{
		path: filesystem.ExpandPath(path, DefaultPath()),
		now:  time.Now,
	}
}

// Path returns the backing file path.
func (s *YAMLStore) Path() string {
	return s.path
}

// Favorites returns all favorites sorted by name.
func (s *YAMLStore) Favorites(_ context.Context) ([]domain.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save inserts or replaces the favorite with the same name.
func (s *YAMLStore) Save(_ context.Context, fav domain.Favorite) error {
	fav.Name = strings.TrimSpace(fav.Name)
	fav.Command = strings.TrimSpace(fav.Command)
	if fav.Name == "" || fav.Command == "" {
		return fmt.Errorf("%w: favorite needs a name and a command", domain.ErrValidation)
	}
	if fav.UpdatedAt.IsZero() {
		fav.UpdatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	favs, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range favs {
		if favs[i].Name == fav.Name {
			if fav.UsageCount == 0 {
				fav.UsageCount = favs[i].UsageCount
			}
			favs[i] = fav
			replaced = true
			break
		}
	}
	if !replaced {
		favs = append(favs, fav)
	}
	return s.write(favs)
}

// Remove deletes the favorite called name.
func (s *YAMLStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	favs, err := s.load()
	if err != nil {
		return err
	}
	kept := favs[:0]
	for _, fav := range favs {
		if fav.Name != name {
			kept = append(kept, fav)
		}
	}
	if len(kept) == len(favs) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.write(kept)
}

func (s *YAMLStore) load() ([]domain.Favorite, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read favorites: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse favorites %s: %w", s.path, err)
	}
	sort.SliceStable(doc.Favorites, func(i, j int) bool {
		return doc.Favorites[i].Name < doc.Favorites[j].Name
	})
	return doc.Favorites, nil
}

func (s *YAMLStore) write(favs []domain.Favorite) error {
	data, err := yaml.Marshal(document{Favorites: favs})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ ports.FavoritesRepository = (*YAMLStore)(nil)
