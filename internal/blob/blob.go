// Package blob — контент-адресуемое хранилище содержимого файлов.
// Имя blob-а — hex(sha256), повторная загрузка того же содержимого
// не занимает места.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentchat/internal/logger"
	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("blob exceeds size limit")

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// path раскладывает blob-ы по подкаталогам первых двух символов хэша,
// чтобы не упереться в лимиты каталога.
func (s *Store) path(sha string) string {
	return filepath.Join(s.dir, sha[:2], sha)
}

// Put пишет содержимое во временный файл, считает sha256 и атомарно
// переименовывает. Если blob уже есть, временный файл просто удаляется.
func (s *Store) Put(r io.Reader, maxBytes int64) (sha string, size int64, err error) {
	tmp := filepath.Join(s.dir, "tmp-"+uuid.New().String())
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("blob: create tmp: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmp)
	}()

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", 0, fmt.Errorf("blob: write: %w", err)
	}
	if size > maxBytes {
		return "", 0, ErrTooLarge
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("blob: close tmp: %w", err)
	}

	sha = hex.EncodeToString(h.Sum(nil))
	dst := s.path(sha)
	if _, err := os.Stat(dst); err == nil {
		return sha, size, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, fmt.Errorf("blob: create shard dir: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", 0, fmt.Errorf("blob: rename: %w", err)
	}
	return sha, size, nil
}

// Open открывает blob на чтение.
func (s *Store) Open(sha string) (*os.File, error) {
	if len(sha) < 3 {
		return nil, os.ErrNotExist
	}
	return os.Open(s.path(sha))
}

// Remove удаляет blob. Отсутствие файла не считается ошибкой.
func (s *Store) Remove(sha string) error {
	if len(sha) < 3 {
		return nil
	}
	err := os.Remove(s.path(sha))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: remove: %w", err)
	}
	// пустой шард-каталог можно не убирать, но попробуем
	if err := os.Remove(filepath.Dir(s.path(sha))); err != nil && !os.IsNotExist(err) {
		logger.Debugf("blob: shard dir not empty: %v", err)
	}
	return nil
}

// Size возвращает размер blob-а на диске.
func (s *Store) Size(sha string) (int64, error) {
	if len(sha) < 3 {
		return 0, os.ErrNotExist
	}
	fi, err := os.Stat(s.path(sha))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
