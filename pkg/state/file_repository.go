package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const stateFileName = "registration.json"

// FileRepository implements Repository using a JSON file.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a new FileRepository for the given directory.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// Load retrieves the last saved registration from disk.
func (r *FileRepository) Load(ctx context.Context) (Registration, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Registration{}, nil
		}
		return Registration{}, err
	}

	var reg Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registration{}, err
	}
	return reg, nil
}

// Save persists the registration, writing to a temp file and renaming it.
func (r *FileRepository) Save(ctx context.Context, reg Registration) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the registration file.
func (r *FileRepository) Path() string {
	return filepath.Join(r.dir, stateFileName)
}
