package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/provider-reconcile/internal/model"
)

// FixtureFiles maps each fixture-backed source to its file name.
var FixtureFiles = map[model.SourceID]string{
	model.SourceRegistry:   "npi_registry.json",
	model.SourceStateBoard: "state_board.json",
	model.SourceHospital:   "hospital_directory.json",
	model.SourceMaps:       "maps_directory.json",
}

type fixtureTable map[model.SourceID]map[string]Record

// Fixtures is a read-only lookup table of per-source records keyed by
// external id. Reload swaps the whole table at once; readers never see a
// partially loaded set.
type Fixtures struct {
	dir   string
	table atomic.Pointer[fixtureTable]
}

// NewFixtures builds an in-memory table, mainly for tests.
func NewFixtures(data map[model.SourceID]map[string]Record) *Fixtures {
	t := fixtureTable{}
	for src, rows := range data {
		t[src] = rows
	}
	f := &Fixtures{}
	f.table.Store(&t)
	return f
}

// LoadFixtures reads every fixture file in dir. A missing file yields an
// empty table for that source.
func LoadFixtures(dir string) (*Fixtures, error) {
	f := &Fixtures{dir: dir}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Dir returns the directory the fixtures were loaded from.
func (f *Fixtures) Dir() string { return f.dir }

// Reload re-reads the fixture directory. On error the previous table stays
// in place.
func (f *Fixtures) Reload() error {
	t := fixtureTable{}
	for src, name := range FixtureFiles {
		rows, err := readFixtureFile(filepath.Join(f.dir, name))
		if err != nil {
			return err
		}
		t[src] = rows
	}
	f.table.Store(&t)
	return nil
}

// Lookup returns a copy of the record src holds for externalID, or an
// empty record.
func (f *Fixtures) Lookup(src model.SourceID, externalID string) Record {
	t := f.table.Load()
	if t == nil {
		return Record{}
	}
	row, ok := (*t)[src][externalID]
	if !ok {
		return Record{}
	}
	out := make(Record, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Count returns the number of records held for src.
func (f *Fixtures) Count(src model.SourceID) int {
	t := f.table.Load()
	if t == nil {
		return 0
	}
	return len((*t)[src])
}

func readFixtureFile(path string) (map[string]Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "source: read fixture %s", path)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "source: parse fixture %s", path)
	}

	rows := make(map[string]Record, len(raw))
	for id, fields := range raw {
		rec := Record{}
		for k, v := range fields {
			name, err := model.ParseFieldName(k)
			if err != nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(norm.NFC.String(s)); s != "" {
				rec[name] = s
			}
		}
		rows[norm.NFC.String(id)] = rec
	}
	return rows, nil
}

// Watch reloads the table whenever a fixture file in the directory is
// written, created or renamed, until ctx ends. Failed reloads are logged
// and the previous table is kept.
func (f *Fixtures) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "source: create fixture watcher")
	}
	if err := w.Add(f.dir); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "source: watch %s", f.dir)
	}

	go func() {
		defer w.Close() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isFixtureFile(evt.Name) {
					continue
				}
				if err := f.Reload(); err != nil {
					zap.L().Warn("source: fixture reload failed", zap.String("file", evt.Name), zap.Error(err))
					continue
				}
				zap.L().Info("source: fixtures reloaded", zap.String("file", evt.Name))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				zap.L().Warn("source: fixture watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func isFixtureFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range FixtureFiles {
		if base == name {
			return true
		}
	}
	return false
}
