package guardian

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/echolock/echolock/internal/common"
)

// Store is an atomically-persisted table of Records keyed by
// switch-id:share-index, backed by the `guardian` file under
// DATA_DIR (spec.md §6).
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, "guardian")}
}

func (s *Store) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, common.NewError(common.KindIo, "reading guardian file", err)
	}
	if len(data) == 0 {
		return map[string]Record{}, nil
	}
	var table map[string]Record
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, common.NewError(common.KindIo, "decoding guardian file", err)
	}
	return table, nil
}

func (s *Store) save(table map[string]Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return common.NewError(common.KindIo, "creating data directory", err)
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return common.NewError(common.KindIo, "encoding guardian file", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return common.NewError(common.KindIo, "writing temporary guardian file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return common.NewError(common.KindIo, "renaming guardian file into place", err)
	}
	return nil
}

// Upsert replaces any prior record for the same (switch-id, index)
// without touching enrolled-at if the caller preserves it.
func (s *Store) Upsert(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return err
	}
	table[r.key()] = r
	return s.save(table)
}

// Get returns the record for (switchID, index), if any.
func (s *Store) Get(switchID string, index byte) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return Record{}, false, err
	}
	r, ok := table[Record{SwitchID: switchID, ShareIndex: index}.key()]
	return r, ok, nil
}

// All returns every persisted record.
func (s *Store) All() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(table))
	for _, r := range table {
		out = append(out, r)
	}
	return out, nil
}

// UpdateAll loads every record, applies fn to each, and persists the
// result in one atomic write. fn may mutate r in place; every record,
// changed or not, is written back.
func (s *Store) UpdateAll(fn func(r *Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return err
	}
	for k, r := range table {
		fn(&r)
		table[k] = r
	}
	return s.save(table)
}
