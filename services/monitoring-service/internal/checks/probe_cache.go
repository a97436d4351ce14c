package checks

import (
	"context"
	"sync"
)

// MemoProbe loads each URL at most once. Create one per client run so both
// site checks share a single browser visit.
type MemoProbe struct {
	inner SiteProbe

	mu      sync.Mutex
	results map[string]*memoEntry
}

type memoEntry struct {
	once sync.Once
	res  *ProbeResult
	err  error
}

func NewMemoProbe(inner SiteProbe) *MemoProbe {
	return &MemoProbe{inner: inner, results: make(map[string]*memoEntry)}
}

func (m *MemoProbe) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	m.mu.Lock()
	entry, ok := m.results[url]
	if !ok {
		entry = &memoEntry{}
		m.results[url] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		entry.res, entry.err = m.inner.Probe(ctx, url)
	})
	return entry.res, entry.err
}
