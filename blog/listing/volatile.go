package listing

import (
	"time"

	"github.com/dfryer1193/publog/blog/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the number of groups kept in the volatile tier.
const DefaultMemorySize = 128

// entry is a volatile snapshot of one group's durable file or of a fresh
// regeneration.
type entry struct {
	posts           []domain.PostSummary
	loadedAt        time.Time
	fileGeneratedAt time.Time
	// fileModTime is the durable file's mtime when the entry was loaded.
	fileModTime time.Time
}

type volatileStore struct {
	entries *lru.Cache[string, *entry]
}

func newVolatileStore(size int) (*volatileStore, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	entries, err := lru.New[string, *entry](size)
	if err != nil {
		return nil, err
	}
	return &volatileStore{entries: entries}, nil
}

func (v *volatileStore) get(group string) (*entry, bool) {
	return v.entries.Get(group)
}

func (v *volatileStore) put(group string, e *entry) {
	v.entries.Add(group, e)
}

func (v *volatileStore) remove(group string) {
	v.entries.Remove(group)
}
