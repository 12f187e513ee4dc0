package community

import (
	"sync"
	"time"
)

// IDProvider issues identifiers for new posts and comments.
type IDProvider interface {
	NewID() int64
}

type millisProvider struct {
	mu   sync.Mutex
	last int64
}

// NewMillisProvider returns an IDProvider issuing millisecond-epoch ids,
// strictly increasing even when two records are created within the same
// millisecond or the wall clock steps backwards.
func NewMillisProvider() IDProvider {
	return &millisProvider{}
}

func (p *millisProvider) NewID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := time.Now().UnixMilli()
	if id <= p.last {
		id = p.last + 1
	}
	p.last = id
	return id
}
