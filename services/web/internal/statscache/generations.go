package statscache

import (
	"hash/fnv"
	"sync"
)

const genStripes = 1024

// generations counts invalidations per key stripe. A fill records the
// generation before it fetches and only stores its value if no invalidation
// touched the key in between. Stripe collisions can only drop a fill.
type generations struct {
	mu    sync.Mutex
	seq   uint64
	floor uint64
	gens  [genStripes]uint64
}

func stripe(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % genStripes)
}

func (g *generations) current(key string) uint64 {
	if v := g.gens[stripe(key)]; v > g.floor {
		return v
	}
	return g.floor
}

// Generation returns the invalidation generation of key.
func (g *generations) Generation(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current(key)
}

func (g *generations) bump(keys ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	for _, k := range keys {
		g.gens[stripe(k)] = g.seq
	}
}

// bumpAll advances every key, used for prefix invalidation.
func (g *generations) bumpAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.floor = g.seq
}

// setIf runs set while holding the generation lock, so an invalidation
// either lands before the check or after the write.
func (g *generations) setIf(key string, gen uint64, set func() error) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current(key) != gen {
		return false, nil
	}
	if err := set(); err != nil {
		return false, err
	}
	return true, nil
}
