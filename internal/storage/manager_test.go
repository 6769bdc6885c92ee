// manager_test.go - Tests for the payload spool
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "spool"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates spool directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")

		store, err := NewLocalStore(dir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("Expected spool directory to be created")
		}
		if store.Dir() != dir {
			t.Errorf("Expected dir %s, got %s", dir, store.Dir())
		}
	})
}

func TestLocalStore_SaveAndRead(t *testing.T) {
	t.Run("saves from reader", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("scan.png", strings.NewReader("png bytes"))
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "scan.png" {
			t.Errorf("Expected name 'scan.png', got %v", info.Name)
		}
		if info.Size != 9 {
			t.Errorf("Expected size 9, got %d", info.Size)
		}

		data, err := store.Read(info.ID)
		if err != nil {
			t.Fatalf("Failed to read: %v", err)
		}
		if string(data) != "png bytes" {
			t.Errorf("Unexpected content %q", data)
		}
	})

	t.Run("saves bytes", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.SaveBytes("doc.pdf", []byte("%PDF-1.4"))
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
		got, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if got.Size != 8 {
			t.Errorf("Expected size 8, got %d", got.Size)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Read("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := store.SaveBytes(fmt.Sprintf("f%d", i), []byte("x")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	list, err := store.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(list))
	}
	if list[0].Name != "f2" {
		t.Errorf("Expected newest first, got %s", list[0].Name)
	}

	all, _ := store.List(0)
	if len(all) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(all))
	}
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)
	info, _ := store.SaveBytes("a", []byte("abc"))

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), info.ID)); !os.IsNotExist(err) {
		t.Error("Expected spooled file to be removed")
	}
	if err := store.Delete(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLocalStore_Purge(t *testing.T) {
	store := createTestStore(t)
	info, _ := store.SaveBytes("a", []byte("abc"))

	if err := store.Purge(); err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if _, err := os.Stat(store.Dir()); !os.IsNotExist(err) {
		t.Error("Expected spool directory to be removed")
	}
	if _, err := store.Read(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after purge, got %v", err)
	}
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store := createTestStore(t)

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := store.SaveBytes(fmt.Sprintf("f%d", i), []byte(strings.Repeat("x", i)))
			if err != nil {
				t.Errorf("save %d: %v", i, err)
				return
			}
			ids <- info.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	n := 0
	for id := range ids {
		if _, err := store.Read(id); err != nil {
			t.Errorf("read %s: %v", id, err)
		}
		n++
	}
	if n != 20 {
		t.Errorf("Expected 20 files, got %d", n)
	}
}
