package botdef

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/logger"
)

// Document is the YAML authoring form of a bot definition.
//
//	id: support
//	name: Support desk
//	token_env: SUPPORT_BOT_TOKEN
//	blocks:
//	  - id: "1"
//	    action: send_text
//	    text: Hello
type Document struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Token    string           `yaml:"token"`
	TokenEnv string           `yaml:"token_env"`
	Active   *bool            `yaml:"active"`
	Blocks   []graph.BlockDef `yaml:"blocks"`
}

// ParseDocument strictly decodes a YAML bot document, validates its graph and
// returns the stored definition form.
func ParseDocument(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("botdef: decode: %w", err)
	}
	return doc.Definition()
}

// Definition validates the document and converts it.
func (d Document) Definition() (*Definition, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return nil, errors.New("botdef: id is required")
	}
	if _, err := graph.Build(d.Blocks); err != nil {
		return nil, err
	}
	blocks, err := graph.Marshal(d.Blocks)
	if err != nil {
		return nil, fmt.Errorf("botdef: encode blocks: %w", err)
	}
	token := strings.TrimSpace(d.Token)
	if env := strings.TrimSpace(d.TokenEnv); env != "" {
		token = strings.TrimSpace(os.Getenv(env))
	}
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return &Definition{
		ID:     id,
		Name:   strings.TrimSpace(d.Name),
		Token:  token,
		Active: active,
		Blocks: blocks,
	}, nil
}

// FileStore serves definitions from a directory of *.yaml / *.yml documents.
// Files are re-read on every Load so edits apply to the next event.
type FileStore struct {
	dir string

	mu    sync.Mutex
	paths map[string]string
}

// NewFileStore indexes dir.
func NewFileStore(dir string) (*FileStore, error) {
	fs := &FileStore{dir: dir}
	if err := fs.rescan(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Load reads the definition for botID.
func (s *FileStore) Load(ctx context.Context, botID string) (*Definition, error) {
	path, ok := s.pathFor(botID)
	if !ok {
		if err := s.rescan(); err != nil {
			return nil, err
		}
		if path, ok = s.pathFor(botID); !ok {
			return nil, ErrNotFound
		}
	}
	def, err := ReadDocument(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if def.ID != botID {
		// file was edited to carry another id
		_ = s.rescan()
		return nil, ErrNotFound
	}
	return def, nil
}

// ListActive returns every active definition in file name order. Invalid files are skipped with a warning.
func (s *FileStore) ListActive(ctx context.Context) ([]Definition, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(files))
	for _, path := range files {
		def, err := ReadDocument(path)
		if err != nil {
			logger.Warn(ctx, "store", "botdef.file.invalid",
				slog.String("status", "skip"),
				slog.String("path", path),
				slog.String("err", err.Error()),
			)
			continue
		}
		if def.Active {
			out = append(out, *def)
		}
	}
	return out, nil
}

func (s *FileStore) pathFor(botID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[botID]
	return p, ok
}

func (s *FileStore) rescan() error {
	files, err := s.files()
	if err != nil {
		return err
	}
	paths := make(map[string]string, len(files))
	for _, path := range files {
		def, err := ReadDocument(path)
		if err != nil {
			continue
		}
		if _, dup := paths[def.ID]; !dup {
			paths[def.ID] = path
		}
	}
	s.mu.Lock()
	s.paths = paths
	s.mu.Unlock()
	return nil
}

func (s *FileStore) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("botdef: read dir %s: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ReadDocument loads and validates one YAML bot document from disk.
func ReadDocument(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if info, statErr := os.Stat(path); statErr == nil {
		def.UpdatedAt = info.ModTime().UTC()
	}
	return def, nil
}
