package keychain

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fileStoreKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestFileStoreSetGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keychain")
	store, err := Open(path, fileStoreKey())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if ok := store.Set(KeyAccessToken, "AT1"); !ok {
		t.Fatalf("set failed")
	}
	v, ok := store.Get(KeyAccessToken)
	if !ok || v != "AT1" {
		t.Fatalf("expected AT1, got %q ok=%v", v, ok)
	}

	// Overwrite is last-write-wins.
	store.Set(KeyAccessToken, "AT2")
	if v, _ := store.Get(KeyAccessToken); v != "AT2" {
		t.Fatalf("expected AT2 after overwrite, got %q", v)
	}

	store.Remove(KeyAccessToken)
	if _, ok := store.Get(KeyAccessToken); ok {
		t.Fatalf("expected entry removed")
	}
	// Removing an absent key is a no-op.
	store.Remove(KeyAccessToken)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keychain")
	store, err := Open(path, fileStoreKey())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.Set(KeyRefreshToken, "RT1")
	store.Set(KeyDeviceID, "device-1")

	reopened, err := Open(path, fileStoreKey())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if v, _ := reopened.Get(KeyRefreshToken); v != "RT1" {
		t.Fatalf("expected RT1 after reopen, got %q", v)
	}
	if v, _ := reopened.Get(KeyDeviceID); v != "device-1" {
		t.Fatalf("expected device-1 after reopen, got %q", v)
	}
}

func TestFileStoreEncryptedAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keychain")
	store, err := Open(path, fileStoreKey())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.Set(KeyRefreshToken, "very-secret-refresh-token")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read keychain file: %v", err)
	}
	if strings.Contains(string(raw), "very-secret-refresh-token") {
		t.Fatalf("keychain file contains plaintext token")
	}
	if strings.Contains(string(raw), KeyRefreshToken) {
		t.Fatalf("keychain file contains plaintext key name")
	}
}

func TestFileStoreRejectsWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keychain")
	store, err := Open(path, fileStoreKey())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.Set(KeyUserID, "u1")

	other := make([]byte, 32)
	for i := range other {
		other[i] = byte(200 - i)
	}
	if _, err := Open(path, base64.StdEncoding.EncodeToString(other)); err == nil {
		t.Fatalf("expected decrypt failure with wrong key")
	}
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()
	if _, ok := store.Get(KeyAccessToken); ok {
		t.Fatalf("expected empty store")
	}
	if !store.Set(KeyAccessToken, "AT1") {
		t.Fatalf("set failed")
	}
	if v, _ := store.Get(KeyAccessToken); v != "AT1" {
		t.Fatalf("expected AT1, got %q", v)
	}
	store.Remove(KeyAccessToken)
	if _, ok := store.Get(KeyAccessToken); ok {
		t.Fatalf("expected entry removed")
	}
}
