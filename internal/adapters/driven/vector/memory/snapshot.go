package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// snapshotVersion is bumped when the file layout changes. Snapshots with
// another version are ignored.
const snapshotVersion = 2

const snapshotExt = ".json"

type snapshotCollection struct {
	Version   int             `json:"version"`
	Name      string          `json:"name"`
	FabricID  string          `json:"fabric_id"`
	Dimension int             `json:"dimension"`
	Entries   []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Open returns an index backed by a snapshot directory holding one file per
// collection. Existing files are read now and Close rewrites only the
// collections this index changed, so processes sharing the directory keep
// each other's collections.
func Open(dir string) (*Index, error) {
	x := NewIndex()
	x.dir = dir

	files, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return x, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vector snapshot directory: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), snapshotExt) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		sc, err := readSnapshot(path)
		if err != nil {
			return nil, err
		}
		if sc.Version != snapshotVersion {
			logger.Warn("ignoring vector snapshot %s with version %d", path, sc.Version)
			continue
		}

		c := &collection{
			fabricID:  sc.FabricID,
			dimension: sc.Dimension,
			entries:   make([]entry, 0, len(sc.Entries)),
			byID:      make(map[string]int, len(sc.Entries)),
		}
		for _, se := range sc.Entries {
			c.byID[se.ID] = len(c.entries)
			c.entries = append(c.entries, entry{id: se.ID, text: se.Text, vector: se.Vector, metadata: se.Metadata})
		}
		x.collections[sc.Name] = c
	}
	logger.Debug("loaded %d vector collections from %s", len(x.collections), dir)
	return x, nil
}

func readSnapshot(path string) (*snapshotCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vector snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var sc snapshotCollection
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse vector snapshot %s: %w", path, err)
	}
	return &sc, nil
}

// snapshotPath maps a collection name to its file.
func (x *Index) snapshotPath(name string) string {
	return filepath.Join(x.dir, url.PathEscape(name)+snapshotExt)
}

// Flush writes the collections changed since the last flush. A deleted
// collection has its file removed; untouched files are never rewritten.
func (x *Index) Flush() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dir == "" || len(x.touched) == 0 {
		return nil
	}
	if err := os.MkdirAll(x.dir, 0o700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	for name := range x.touched {
		path := x.snapshotPath(name)
		c, ok := x.collections[name]
		if !ok {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove vector snapshot %s: %w", name, err)
			}
			delete(x.touched, name)
			continue
		}
		if err := writeSnapshot(path, name, c); err != nil {
			return err
		}
		delete(x.touched, name)
	}
	return nil
}

// writeSnapshot replaces path atomically. The temp file is unique so two
// processes flushing the same collection never interleave their bytes.
func writeSnapshot(path, name string, c *collection) error {
	sc := snapshotCollection{
		Version:   snapshotVersion,
		Name:      name,
		FabricID:  c.fabricID,
		Dimension: c.dimension,
		Entries:   make([]snapshotEntry, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		sc.Entries = append(sc.Entries, snapshotEntry{ID: e.id, Text: e.text, Vector: e.vector, Metadata: e.metadata})
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode vector snapshot %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create vector snapshot %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write vector snapshot %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write vector snapshot %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace vector snapshot %s: %w", name, err)
	}
	return nil
}
