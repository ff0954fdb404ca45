package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the registry file inside the data directory.
const FileName = "names.json"

// Persister loads and saves the full identifier -> name mapping.
type Persister interface {
	Load() (map[string]string, error)
	Save(names map[string]string) error
}

// FilePersister stores the mapping as pretty-printed JSON.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister for <dataDir>/names.json.
func NewFilePersister(dataDir string) *FilePersister {
	return &FilePersister{path: filepath.Join(dataDir, FileName)}
}

// Path returns the backing file path.
func (p *FilePersister) Path() string { return p.path }

// Load reads the mapping. A missing file yields an empty map and no error.
func (p *FilePersister) Load() (map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}

	names := make(map[string]string)
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.path, err)
	}
	return names, nil
}

// Save rewrites the whole file via a temp file and rename.
func (p *FilePersister) Save(names map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), FileName+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
