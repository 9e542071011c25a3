package envelope

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/ruvnet/daa-sub007/errkind"
)

// memoCache bounds the set of recently-completed reassembled payloads kept
// around so a duplicate final chunk (common under Flood routing) resolves
// from cache instead of triggering a second reassembly, per §4.2 "memoize
// in a bounded LRU".
type memoCache struct {
	c *ristretto.Cache[string, []byte]
}

func newMemoCache(maxItems int64) (*memoCache, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Fatal, err, "envelope: construct memo cache")
	}
	return &memoCache{c: c}, nil
}

func (m *memoCache) get(id string) ([]byte, bool) {
	return m.c.Get(id)
}

func (m *memoCache) put(id string, data []byte) {
	m.c.Set(id, data, 1)
	// Set is buffered; wait so an immediate duplicate chunk finds it.
	m.c.Wait()
}

func (m *memoCache) len() int {
	m.c.Wait()
	return int(m.c.Metrics.KeysAdded() - m.c.Metrics.KeysEvicted())
}
