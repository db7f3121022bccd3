package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store кладёт байты документов на диск и возвращает ссылку; бизнес-слой
// хранит только ссылку, никогда сами байты
type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save сохраняет содержимое под uuid-именем в подпапке subdir и возвращает
// ссылку относительно корня хранилища
func (s *Store) Save(subdir, originalFilename string, content []byte) (string, error) {
	dir := filepath.Join(s.baseDir, filepath.Clean("/"+subdir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create subdir: %w", err)
	}

	name := uuid.NewString() + sanitizedExt(originalFilename)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	ref, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(ref), nil
}

// Open читает документ по ссылке, выданной Save
func (s *Store) Open(ref string) ([]byte, error) {
	path := filepath.Join(s.baseDir, filepath.Clean("/"+filepath.FromSlash(ref)))
	return os.ReadFile(path)
}

func sanitizedExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
