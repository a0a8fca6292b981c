package listing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/dfryer1193/publog/blog/persistence"
)

// cacheFile is the JSON document stored per group.
type cacheFile struct {
	GeneratedAt time.Time            `json:"generated_at"`
	PostCount   int                  `json:"post_count"`
	Posts       []domain.PostSummary `json:"posts"`
}

// durableStore keeps one cache file per group under dir.
type durableStore struct {
	dir string
}

func (d *durableStore) path(group string) string {
	return filepath.Join(d.dir, group+".json")
}

// read returns os.ErrNotExist (wrapped) when the group has no file.
func (d *durableStore) read(group string) (*cacheFile, error) {
	data, err := os.ReadFile(d.path(group))
	if err != nil {
		return nil, err
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &domain.ParseError{Path: d.path(group), Err: err}
	}
	if f.Posts == nil {
		f.Posts = []domain.PostSummary{}
	}
	return &f, nil
}

func (d *durableStore) write(group string, f *cacheFile) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode cache for %s: %w", group, err)
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return &domain.IOError{Path: d.dir, Err: err}
	}
	if err := persistence.WriteFileAtomic(d.path(group), data, 0644); err != nil {
		return &domain.IOError{Path: d.path(group), Err: err}
	}
	return nil
}

// modTime reports when the group's file last changed; zero if absent.
func (d *durableStore) modTime(group string) time.Time {
	info, err := os.Stat(d.path(group))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (d *durableStore) remove(group string) error {
	if err := os.Remove(d.path(group)); err != nil && !os.IsNotExist(err) {
		return &domain.IOError{Path: d.path(group), Err: err}
	}
	return nil
}
