package switchcoord

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/echolock/echolock/internal/common"
)

// Store is an atomically-persisted table of Switch aggregates keyed
// by id, backed by the `switches` file under DATA_DIR (spec.md §6).
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, "switches")}
}

func (s *Store) load() (map[string]*Switch, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*Switch{}, nil
	}
	if err != nil {
		return nil, common.NewError(common.KindIo, "reading switches file", err)
	}
	if len(data) == 0 {
		return map[string]*Switch{}, nil
	}
	var table map[string]*Switch
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, common.NewError(common.KindIo, "decoding switches file", err)
	}
	return table, nil
}

// save writes table to disk via a temp file + rename, so a crash
// mid-write never leaves a truncated `switches` file behind.
func (s *Store) save(table map[string]*Switch) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return common.NewError(common.KindIo, "creating data directory", err)
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return common.NewError(common.KindIo, "encoding switches file", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return common.NewError(common.KindIo, "writing temporary switches file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return common.NewError(common.KindIo, "renaming switches file into place", err)
	}
	return nil
}

// Get returns a copy of the persisted switch sw, or nil, false.
func (s *Store) Get(id string) (*Switch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return nil, false, err
	}
	sw, ok := table[id]
	return sw, ok, nil
}

// List returns every persisted switch, in no particular order.
func (s *Store) List() ([]*Switch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*Switch, 0, len(table))
	for _, sw := range table {
		out = append(out, sw)
	}
	return out, nil
}

// Put persists sw, overwriting any prior record with the same id.
func (s *Store) Put(sw *Switch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return err
	}
	table[sw.ID] = sw
	return s.save(table)
}

// Delete removes id from the store. It is not an error if id is
// already absent.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return err
	}
	delete(table, id)
	return s.save(table)
}

// Update loads sw, applies fn, and persists the result, all while
// holding the store's lock so check-in and cancel cannot race on the
// same switch.
func (s *Store) Update(id string, fn func(sw *Switch) error) (*Switch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.load()
	if err != nil {
		return nil, err
	}
	sw, ok := table[id]
	if !ok {
		return nil, common.NewError(common.KindParameterError, "no such switch: "+id, nil)
	}
	if err := fn(sw); err != nil {
		return nil, err
	}
	table[id] = sw
	if err := s.save(table); err != nil {
		return nil, err
	}
	return sw, nil
}
