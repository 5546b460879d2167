package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileStore persists the registry as a delimited table on disk, with its
// project set in a YAML file beside it (partners.csv -> partners.projects.yaml).
type FileStore struct {
	Path    string
	Catalog *domain.ProjectCatalog
}

func NewFileStore(path string, catalog *domain.ProjectCatalog) *FileStore {
	return &FileStore{Path: path, Catalog: catalog}
}

// ProjectsPath returns the path of the project set file.
func (s *FileStore) ProjectsPath() string {
	return strings.TrimSuffix(s.Path, filepath.Ext(s.Path)) + ".projects.yaml"
}

// Load reads and decodes the registry file. Without a project set file the
// table is decoded against the catalog alone.
func (s *FileStore) Load(ctx context.Context) (_ *domain.Registry, err error) {
	defer obs.Time(ctx, "registry.file.Load")(&err)

	if s.Path == "" {
		return nil, errors.New("load registry: path is empty")
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("load registry: open %q: %w", s.Path, err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("load registry %q: %w", s.Path, err)
	}

	set, err := s.loadProjects()
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	reg, err := DecodeWith(t, s.Catalog, set)
	if err != nil {
		return nil, fmt.Errorf("load registry %q: %w", s.Path, err)
	}
	return reg, nil
}

// Save encodes the registry and its project set and replaces both files
// atomically.
func (s *FileStore) Save(ctx context.Context, reg *domain.Registry) (err error) {
	defer obs.Time(ctx, "registry.file.Save")(&err)

	if s.Path == "" {
		return errors.New("save registry: path is empty")
	}
	if reg == nil {
		return errors.New("save registry: registry is nil")
	}

	var buf bytes.Buffer
	if err := WriteTable(&buf, Encode(reg)); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}

	projects, err := yaml.Marshal(reg.ProjectSet())
	if err != nil {
		return fmt.Errorf("save registry: encode project set: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("save registry: mkdir: %w", err)
	}

	if err := writeAtomic(s.Path, buf.Bytes()); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	if err := writeAtomic(s.ProjectsPath(), projects); err != nil {
		return fmt.Errorf("save registry: project set: %w", err)
	}

	return nil
}

func (s *FileStore) loadProjects() (*domain.ProjectSet, error) {
	b, err := os.ReadFile(s.ProjectsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project set: %w", err)
	}

	var set domain.ProjectSet
	if err := yaml.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("decode project set %q: %w", s.ProjectsPath(), err)
	}
	return &set, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
