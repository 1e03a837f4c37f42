// Package adminkey генерирует и проверяет админ-ключи комнат.
// Ключ имеет вид chat_<32 hex> и хранится только как sha256-хэш
// на строке комнаты.
package adminkey

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	Prefix    = "chat_"
	randBytes = 16
)

// Generate создаёт новый ключ. Возвращает ключ в открытом виде (единственный
// момент, когда он доступен) и его хэш для хранения.
func Generate() (key, hash string, err error) {
	buf := make([]byte, randBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("adminkey: rand: %w", err)
	}
	key = Prefix + hex.EncodeToString(buf)
	return key, Hash(key), nil
}

// Hash возвращает hex(sha256(key)).
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// WellFormed проверяет формат ключа без сравнения с хэшем.
func WellFormed(key string) bool {
	if !strings.HasPrefix(key, Prefix) {
		return false
	}
	body := key[len(Prefix):]
	if len(body) != randBytes*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// Verify сверяет предъявленный ключ с хранимым хэшем.
// Сравнение идёт по хэшам константным временем.
func Verify(key, storedHash string) bool {
	if storedHash == "" || !WellFormed(key) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Hash(key)), []byte(storedHash)) == 1
}

// MaskKey сокращает ключ для логов: префикс и три символа тела.
func MaskKey(key string) string {
	if len(key) <= len(Prefix)+3 {
		return "***"
	}
	return key[:len(Prefix)+3] + "***"
}
