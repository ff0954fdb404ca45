package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const ledgerVersion = "1.0"

// LedgerStore reads and writes the ledger as indented JSON.
type LedgerStore struct {
	path string
}

// NewLedgerStore returns a store backed by path. The parent directory is
// created on first save.
func NewLedgerStore(path string) *LedgerStore {
	return &LedgerStore{path: path}
}

// Path returns the backing file path.
func (s *LedgerStore) Path() string { return s.path }

// Load reads saved counters. A missing file returns nil, nil.
func (s *LedgerStore) Load() (*ledgerData, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ld ledgerData
	if err := json.Unmarshal(data, &ld); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if ld.Sources == nil {
		ld.Sources = make(map[string]SourceCounts)
	}
	return &ld, nil
}

// Save writes through a temp file and rename.
func (s *LedgerStore) Save(ld *ledgerData) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger dir: %w", err)
	}

	data, err := json.MarshalIndent(ld, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
