package secretstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps entries in a JSON file readable only by the owner.
// Used where no OS keyring is available (headless hosts, containers).
type FileBackend struct {
	mu   sync.Mutex
	path string
}

type fileData struct {
	Entries map[string]string `json:"entries"`
}

// NewFileBackend creates a file backend at path. An empty path selects
// <user config dir>/mgclub-smartpass/passstore.json.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config dir: %w", err)
		}
		path = filepath.Join(dir, DefaultKeyringService, "passstore.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// Path returns the backing file location
func (f *FileBackend) Path() string {
	return f.path
}

// load reads the file. A corrupt file is an error; it is never reset.
func (f *FileBackend) load() (fileData, error) {
	data := fileData{Entries: make(map[string]string)}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return data, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("corrupt store file %s: %w", f.path, err)
	}
	if data.Entries == nil {
		data.Entries = make(map[string]string)
	}
	return data, nil
}

func (f *FileBackend) save(data fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileBackend) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := data.Entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileBackend) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data.Entries[key] = value
	return f.save(data)
}

func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := data.Entries[key]; !ok {
		return nil
	}
	delete(data.Entries, key)
	return f.save(data)
}
