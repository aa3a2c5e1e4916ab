package vcrypt

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/localvakil/vakil/pkg/verr"
)

// KeySource yields the master key. Implementations return a
// configuration_error when no usable key is available.
type KeySource interface {
	Key() ([]byte, error)
}

// StaticKey is a KeySource over an in-memory key.
type StaticKey []byte

func (k StaticKey) Key() ([]byte, error) {
	trimmed := bytes.TrimSpace(k)
	if len(trimmed) < KeySize {
		return nil, verr.New(verr.CodeConfiguration, ErrKeyTooShort)
	}
	return trimmed, nil
}

// FileKey reads the master key from a file the process does not create.
// The file is read on first use and the result is cached once it validates;
// a failed read is retried on the next call.
type FileKey struct {
	path string

	mu  sync.Mutex
	key []byte
}

func NewFileKey(path string) *FileKey {
	return &FileKey{path: path}
}

func (f *FileKey) Key() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.key != nil {
		return f.key, nil
	}
	if f.path == "" {
		return nil, verr.Errorf(verr.CodeConfiguration, "encryption key path is not set")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, verr.New(verr.CodeConfiguration, fmt.Errorf("reading encryption key: %w", err))
	}

	key := bytes.TrimSpace(data)
	if len(key) == 0 {
		return nil, verr.Errorf(verr.CodeConfiguration, "encryption key file %s is empty", f.path)
	}
	if len(key) < KeySize {
		return nil, verr.New(verr.CodeConfiguration, fmt.Errorf("encryption key file %s: %w", f.path, ErrKeyTooShort))
	}

	f.key = key
	return f.key, nil
}

// Service binds Encrypt and Decrypt to a KeySource.
type Service struct {
	keys KeySource
}

func NewService(keys KeySource) *Service {
	return &Service{keys: keys}
}

// Check verifies that the key source currently yields a valid key.
func (s *Service) Check() error {
	_, err := s.keys.Key()
	return err
}

func (s *Service) Encrypt(plaintext string) (string, error) {
	key, err := s.keys.Key()
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, key)
}

func (s *Service) Decrypt(envelope string) (string, error) {
	key, err := s.keys.Key()
	if err != nil {
		return "", err
	}
	return Decrypt(envelope, key)
}

var (
	_ Encrypter = (*Service)(nil)
	_ Decrypter = (*Service)(nil)
)
