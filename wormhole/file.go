package wormhole

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// fileEntry mirrors Wormhole with an optional enabled flag; entries that
// omit it are enabled.
type fileEntry struct {
	ID      string `yaml:"id"`
	From    From   `yaml:"from"`
	To      To     `yaml:"to"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

type fileDocument struct {
	Wormholes []fileEntry `yaml:"wormholes"`
}

// FileStore reads wormholes from a YAML document of the form
//
//	wormholes:
//	  - id: api-click
//	    from: {sourceType: api, eventType: click}
//	    to: {targetAgentRole: bot, actionType: notify}
type FileStore struct {
	path     string
	logger   *zap.Logger
	debounce time.Duration
}

// NewFileStore returns a store over the YAML file at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:     path,
		logger:   logger.Named("wormholes"),
		debounce: 500 * time.Millisecond,
	}
}

// Path returns the file the store reads.
func (s *FileStore) Path() string {
	return s.path
}

// List parses the file. Order follows the document.
func (s *FileStore) List(ctx context.Context) ([]Wormhole, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wormhole file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse wormhole file %s: %w", s.path, err)
	}

	list := make([]Wormhole, 0, len(doc.Wormholes))
	for _, e := range doc.Wormholes {
		list = append(list, Wormhole{
			ID:      e.ID,
			From:    e.From,
			To:      e.To,
			Enabled: e.Enabled == nil || *e.Enabled,
		})
	}
	return list, nil
}

// Save writes list to the file, replacing its contents.
func (s *FileStore) Save(list []Wormhole) error {
	doc := fileDocument{Wormholes: make([]fileEntry, 0, len(list))}
	for _, w := range list {
		enabled := w.Enabled
		doc.Wormholes = append(doc.Wormholes, fileEntry{ID: w.ID, From: w.From, To: w.To, Enabled: &enabled})
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode wormholes: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write wormhole file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Watch calls onChange after the file is written, created or renamed into
// place, debounced. It blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so atomic replaces are seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	s.logger.Info("watching wormhole file", zap.String("file", abs))

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(s.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debug("wormhole file changed", zap.String("op", event.Op.String()))
				onChange()
			})

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("wormhole watcher error", zap.Error(err))
		}
	}
}
