package upload

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/normalisers"
)

var _ driven.WatchableSource = (*Source)(nil)

// Metadata keys set on uploaded documents.
const (
	MetaFileName = "file_name"
	MetaFilePath = "file_path"
	MetaFileSize = "file_size"
)

// maxFileSize bounds the files read into memory.
const maxFileSize = 32 << 20

// supportedExtensions lists the file types ingested from the upload directory.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".log":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".json":     true,
	".html":     true,
	".htm":      true,
}

// Source reads documents from a directory tree.
type Source struct {
	root     string
	registry driven.NormaliserRegistry

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates an upload source rooted at dir.
func New(dir string, registry driven.NormaliserRegistry) *Source {
	return &Source{root: filepath.Clean(dir), registry: registry}
}

// Kind returns the upload provenance tag.
func (s *Source) Kind() domain.SourceKind {
	return domain.SourceKindUpload
}

// Root returns the watched directory.
func (s *Source) Root() string {
	return s.root
}

// Fetch walks the directory and returns one document per supported file.
// Hidden files and directories are skipped. A file that cannot be read or
// normalised is logged and skipped.
func (s *Source) Fetch(ctx context.Context) ([]domain.SourceDocument, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: upload directory %s: %w", domain.ErrSourceUnavailable, s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: upload path %s is not a directory", domain.ErrSourceUnavailable, s.root)
	}

	var docs []domain.SourceDocument
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logger.Warn("upload: skipping %s: %v", path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != s.root && isHidden(s.rel(path)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isSupported(path) {
			return nil
		}

		doc, err := s.readDocument(ctx, path)
		if err != nil {
			logger.Warn("upload: failed to parse %s: %v", d.Name(), err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("upload: read %d documents from %s", len(docs), s.root)
	return docs, nil
}

func (s *Source) readDocument(ctx context.Context, path string) (domain.SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.SourceDocument{}, err
	}
	if info.Size() > maxFileSize {
		return domain.SourceDocument{}, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceDocument{}, err
	}

	result, err := s.registry.Normalise(ctx, &domain.RawDocument{
		URI:      path,
		MIMEType: normalisers.DetectMIMEType(path),
		Content:  content,
	})
	if err != nil {
		return domain.SourceDocument{}, err
	}

	name := filepath.Base(path)
	meta := map[string]any{
		MetaFileName: name,
		MetaFilePath: path,
		MetaFileSize: info.Size(),
	}
	if result.Title != "" {
		meta[domain.MetaTitle] = result.Title
	}

	return domain.SourceDocument{
		ID:       name,
		Content:  result.Content,
		Source:   string(domain.SourceKindUpload),
		Metadata: meta,
	}, nil
}

// Watch streams changes to supported files under the root until ctx is
// cancelled. Directories created later are watched as well.
func (s *Source) Watch(ctx context.Context) (<-chan domain.SourceChange, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := s.addTree(watcher, s.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%w: watch %s: %w", domain.ErrSourceUnavailable, s.root, err)
	}

	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.watcher = watcher
	s.mu.Unlock()

	changes := make(chan domain.SourceChange, 16)
	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(s.rel(event.Name)) {
						if err := s.addTree(watcher, event.Name); err != nil {
							logger.Warn("upload: cannot watch %s: %v", event.Name, err)
						}
					}
				}
				change := s.handleFsEvent(event)
				if change == nil {
					continue
				}
				select {
				case changes <- *change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("upload: watcher error: %v", err)
			}
		}
	}()

	return changes, nil
}

// Close stops any active watcher.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

func (s *Source) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.root && isHidden(s.rel(path)) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// handleFsEvent converts a filesystem event into a change, or nil when the
// event does not affect an ingestible file.
func (s *Source) handleFsEvent(event fsnotify.Event) *domain.SourceChange {
	if isHidden(s.rel(event.Name)) || !isSupported(event.Name) {
		return nil
	}

	var changeType domain.ChangeType
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		changeType = domain.ChangeDeleted
	case event.Has(fsnotify.Create):
		changeType = domain.ChangeCreated
	case event.Has(fsnotify.Write):
		changeType = domain.ChangeUpdated
	default:
		return nil
	}

	if changeType != domain.ChangeDeleted {
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return nil
		}
	}

	return &domain.SourceChange{Type: changeType, URI: event.Name}
}

func (s *Source) rel(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}

func isSupported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// isHidden reports whether any path element starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
