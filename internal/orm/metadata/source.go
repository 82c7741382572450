// Package metadata resolves declarative entity and relationship metadata into schema definitions.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by a Source when the named metadata does not exist
var ErrNotFound = errors.New("metadata not found")

// Source supplies raw metadata maps
type Source interface {
	EntityMetadata(ctx context.Context, name string) (map[string]interface{}, error)
	RelationshipMetadata(ctx context.Context, name string) (map[string]interface{}, error)
	EntityNames(ctx context.Context) ([]string, error)
	RelationshipNames(ctx context.Context) ([]string, error)
}

// FileSource reads YAML metadata from a directory laid out as
// entities/<Name>.yaml and relationships/<name>.yaml
type FileSource struct {
	Dir string
}

// NewFileSource creates a file source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// EntityMetadata reads entities/<name>.yaml
func (s *FileSource) EntityMetadata(ctx context.Context, name string) (map[string]interface{}, error) {
	return s.read(ctx, "entities", name)
}

// RelationshipMetadata reads relationships/<name>.yaml
func (s *FileSource) RelationshipMetadata(ctx context.Context, name string) (map[string]interface{}, error) {
	return s.read(ctx, "relationships", name)
}

// EntityNames lists the entity metadata files
func (s *FileSource) EntityNames(ctx context.Context) ([]string, error) {
	return s.list(ctx, "entities")
}

// RelationshipNames lists the relationship metadata files
func (s *FileSource) RelationshipNames(ctx context.Context) ([]string, error) {
	return s.list(ctx, "relationships")
}

func (s *FileSource) read(ctx context.Context, kind, name string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.Dir, kind, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, name)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if raw == nil {
		raw = make(map[string]interface{})
	}
	return raw, nil
}

func (s *FileSource) list(ctx context.Context, kind string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.Dir, kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// MapSource serves metadata from memory
type MapSource struct {
	Entities      map[string]map[string]interface{}
	Relationships map[string]map[string]interface{}
}

// EntityMetadata returns a copy of the named entity metadata
func (s *MapSource) EntityMetadata(_ context.Context, name string) (map[string]interface{}, error) {
	raw, ok := s.Entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: entities %s", ErrNotFound, name)
	}
	return Merge(nil, raw), nil
}

// RelationshipMetadata returns a copy of the named relationship metadata
func (s *MapSource) RelationshipMetadata(_ context.Context, name string) (map[string]interface{}, error) {
	raw, ok := s.Relationships[name]
	if !ok {
		return nil, fmt.Errorf("%w: relationships %s", ErrNotFound, name)
	}
	return Merge(nil, raw), nil
}

// EntityNames returns the entity names in alphabetical order
func (s *MapSource) EntityNames(context.Context) ([]string, error) {
	return sortedKeys(s.Entities), nil
}

// RelationshipNames returns the relationship names in alphabetical order
func (s *MapSource) RelationshipNames(context.Context) ([]string, error) {
	return sortedKeys(s.Relationships), nil
}

func sortedKeys(m map[string]map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
