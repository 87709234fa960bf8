// Package p2p provides the peer output port and the TCP transport used by the relay.
package p2p

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ahwlsqja/txrelay/types"
)

// Picker chooses one peer out of a candidate list.
// The randomness source is injected so announcement fan-out is reproducible in tests.
type Picker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker creates a picker over src. A nil src is seeded from the wall clock.
func NewPicker(src rand.Source) *Picker {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Picker{rng: rand.New(src)}
}

// NewSeededPicker is shorthand for NewPicker(rand.NewSource(seed)).
func NewSeededPicker(seed int64) *Picker {
	return NewPicker(rand.NewSource(seed))
}

// Pick returns one of candidates, or false when there are none.
func (p *Picker) Pick(candidates []types.PeerID) (types.PeerID, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	p.mu.Lock()
	i := p.rng.Intn(len(candidates))
	p.mu.Unlock()
	return candidates[i], true
}

// without returns ids minus every id in exclude, keeping order.
func without(ids []types.PeerID, exclude []types.PeerID) []types.PeerID {
	if len(exclude) == 0 {
		return ids
	}
	out := make([]types.PeerID, 0, len(ids))
next:
	for _, id := range ids {
		for _, ex := range exclude {
			if id == ex {
				continue next
			}
		}
		out = append(out, id)
	}
	return out
}
