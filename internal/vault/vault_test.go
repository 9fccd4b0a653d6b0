package vault

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func newVault(t *testing.T) (*Vault, string) {
	t.Helper()
	cheapKDF(t)
	path := filepath.Join(t.TempDir(), "vault.enc")
	v, err := Create("hunter2", path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return v, path
}

func TestCreate_writesPrivateFile(t *testing.T) {
	_, path := newVault(t)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm = %o, want 0600", info.Mode().Perm())
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"version": 1`) || !strings.Contains(string(data), `"memory_kib": 1024`) {
		t.Fatalf("file = %s", data)
	}
}

func TestCreate_saveError(t *testing.T) {
	cheapKDF(t)
	orig := atomicWrite
	atomicWrite = func(string, []byte, os.FileMode) error { return errors.New("disk full") }
	t.Cleanup(func() { atomicWrite = orig })

	if _, err := Create("p", filepath.Join(t.TempDir(), "v.enc")); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
}

func TestVault_SetGetPersist(t *testing.T) {
	v, path := newVault(t)
	if err := v.Set("main_token", "123:abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := v.Set("alt_token", "456:def"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := v.Set("main_token", "123:xyz"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	reopened, err := Unlock("hunter2", path)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	got, err := reopened.Get("main_token")
	if err != nil || got != "123:xyz" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if keys := reopened.List(); !reflect.DeepEqual(keys, []string{"alt_token", "main_token"}) {
		t.Fatalf("List = %v", keys)
	}
}

func TestUnlock_wrongPassphrase(t *testing.T) {
	_, path := newVault(t)
	if _, err := Unlock("wrong", path); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("err = %v, want ErrWrongPassphrase", err)
	}
}

func TestUnlock_badFiles(t *testing.T) {
	cheapKDF(t)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid json", "{", "unmarshal"},
		{"old version", `{"version":0}`, "unsupported file version"},
		{"bad kdf", `{"version":1,"kdf":{"time":0,"memory_kib":1024,"threads":1}}`, "kdf"},
		{"bad salt", `{"version":1,"salt":"!!","kdf":{"time":1,"memory_kib":1024,"threads":1}}`, "decode salt"},
		{"bad entry", `{"version":1,"salt":"","check":"","kdf":{"time":1,"memory_kib":1024,"threads":1},"entries":{"k":"!!"}}`, "decode entry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vault.enc")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Unlock("p", path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := Unlock("p", filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}
}

func TestVault_GetMissing(t *testing.T) {
	v, _ := newVault(t)
	if _, err := v.Get("nope"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestVault_SwappedEntriesFail(t *testing.T) {
	v, _ := newVault(t)
	_ = v.Set("a", "one")
	_ = v.Set("b", "two")
	v.entries["a"], v.entries["b"] = v.entries["b"], v.entries["a"]
	if _, err := v.Get("a"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestVault_Delete(t *testing.T) {
	v, path := newVault(t)
	_ = v.Set("a", "one")
	if err := v.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := v.Delete("a"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("second Delete = %v", err)
	}
	reopened, err := Unlock("hunter2", path)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if len(reopened.List()) != 0 {
		t.Fatalf("List = %v", reopened.List())
	}
}

func TestVault_saveFailureRollsBack(t *testing.T) {
	v, _ := newVault(t)
	_ = v.Set("kept", "v1")

	orig := atomicWrite
	atomicWrite = func(string, []byte, os.FileMode) error { return errors.New("disk full") }
	t.Cleanup(func() { atomicWrite = orig })

	if err := v.Set("kept", "v2"); err == nil {
		t.Fatal("expected Set error")
	}
	if err := v.Set("new", "x"); err == nil {
		t.Fatal("expected Set error")
	}
	if err := v.Delete("kept"); err == nil {
		t.Fatal("expected Delete error")
	}
	got, err := v.Get("kept")
	if err != nil || got != "v1" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if !reflect.DeepEqual(v.List(), []string{"kept"}) {
		t.Fatalf("List = %v", v.List())
	}
}

func TestVault_marshalError(t *testing.T) {
	v, _ := newVault(t)
	orig := jsonMarshalIndent
	jsonMarshalIndent = func(any, string, string) ([]byte, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { jsonMarshalIndent = orig })

	if err := v.Set("k", "v"); err == nil || !strings.Contains(err.Error(), "marshal") {
		t.Fatalf("err = %v", err)
	}
}

func TestVault_concurrentAccess(t *testing.T) {
	v, _ := newVault(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			if err := v.Set(key, key); err != nil {
				t.Errorf("Set: %v", err)
			}
			_, _ = v.Get(key)
			_ = v.List()
		}(i)
	}
	wg.Wait()
	if len(v.List()) != 8 {
		t.Fatalf("List = %v", v.List())
	}
}

type mapGetter map[string]string

func (m mapGetter) Get(key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", ErrKeyNotFound
}

func TestResolve(t *testing.T) {
	g := mapGetter{"main_token": "123:abc"}
	tests := []struct {
		name    string
		value   string
		getter  Getter
		want    string
		wantErr error
	}{
		{"literal", "123:literal", g, "123:literal", nil},
		{"reference", "vault:main_token", g, "123:abc", nil},
		{"padded reference", "  vault:main_token ", g, "123:abc", nil},
		{"bare prefix is literal", "vault:", g, "vault:", nil},
		{"missing key", "vault:other", g, "", ErrKeyNotFound},
		{"no vault", "vault:main_token", nil, "", ErrLocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.value, tt.getter)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Resolve = %q, %v", got, err)
			}
		})
	}
}
