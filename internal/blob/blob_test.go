package blob

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutAndOpen(t *testing.T) {
	s := newTestStore(t)
	content := []byte("hello, blob")

	sha, size, err := s.Put(bytes.NewReader(content), 1024)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	sum := sha256.Sum256(content)
	if want := hex.EncodeToString(sum[:]); sha != want {
		t.Errorf("sha = %s, want %s", sha, want)
	}

	f, err := s.Open(sha)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if !bytes.Equal(got, content) {
		t.Errorf("read back %q, want %q", got, content)
	}
}

func TestPutDeduplicates(t *testing.T) {
	s := newTestStore(t)
	content := strings.NewReader("same content")

	sha1, _, err := s.Put(content, 1024)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	sha2, _, err := s.Put(strings.NewReader("same content"), 1024)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if sha1 != sha2 {
		t.Errorf("same content produced different hashes: %s vs %s", sha1, sha2)
	}
}

func TestPutRejectsOversize(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Put(strings.NewReader("0123456789"), 5)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Put oversize = %v, want ErrTooLarge", err)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)

	sha, _, err := s.Put(strings.NewReader("doomed"), 1024)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Remove(sha); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Open(sha); !os.IsNotExist(err) {
		t.Errorf("Open after Remove = %v, want not-exist", err)
	}
	// повторное удаление не ошибка
	if err := s.Remove(sha); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestSize(t *testing.T) {
	s := newTestStore(t)

	sha, _, _ := s.Put(strings.NewReader("12345"), 1024)
	n, err := s.Size(sha)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if n != 5 {
		t.Errorf("Size = %d, want 5", n)
	}
}
