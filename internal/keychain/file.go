package keychain

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"nexzywatch/internal/security/secretbox"
)

// FileStore persists entries as a single encrypted JSON document. The file
// never contains plaintext values; writes go through a temp file and rename.
type FileStore struct {
	mu     sync.Mutex
	path   string
	box    *secretbox.Box
	values map[string]string
}

func Open(path, base64Key string) (*FileStore, error) {
	box, err := secretbox.New(base64Key)
	if err != nil {
		return nil, err
	}
	s := &FileStore{path: path, box: box, values: make(map[string]string)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	plain, err := s.box.Decrypt(string(raw))
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(plain), &s.values)
}

func (s *FileStore) Set(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.persist(key)
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *FileStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	_ = s.persist(key)
}

func (s *FileStore) persist(key string) bool {
	raw, err := json.Marshal(s.values)
	if err != nil {
		log.Printf("keychain write failed for %s: %v", key, err)
		return false
	}
	sealed, err := s.box.Encrypt(string(raw))
	if err != nil {
		log.Printf("keychain write failed for %s: %v", key, err)
		return false
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		log.Printf("keychain write failed for %s: %v", key, err)
		return false
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0o600); err != nil {
		log.Printf("keychain write failed for %s: %v", key, err)
		return false
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("keychain write failed for %s: %v", key, err)
		return false
	}
	return true
}
