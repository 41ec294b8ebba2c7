package flowaggregator

import (
	"hash/maphash"
	"sync"

	"nettop/internal/model"
)

const defaultShardCount = 64

// shard is a part of a sharded map, containing its own map and a mutex.
type shard struct {
	flows map[model.FlowKey]*model.FlowStats
	mu    sync.Mutex
}

// Aggregator owns the bidirectional flow table. Both directions of a conversation hash to the same
// shard, so Update only ever locks one shard.
type Aggregator struct {
	shards     []*shard
	shardCount uint32
	seed       maphash.Seed
}

// New creates an empty aggregator with the given number of shards.
func New(numShards uint32) *Aggregator {
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	a := &Aggregator{
		shards:     make([]*shard, numShards),
		shardCount: numShards,
		seed:       maphash.MakeSeed(),
	}
	for i := range a.shards {
		a.shards[i] = &shard{flows: make(map[model.FlowKey]*model.FlowStats)}
	}
	return a
}

// getShard returns the shard for a key. The hash ignores direction.
func (a *Aggregator) getShard(k model.FlowKey) *shard {
	a1, a2 := k.Addr1.As16(), k.Addr2.As16()
	p1, p2 := k.Port1, k.Port2
	if k.Compare(k.Reverse()) > 0 {
		a1, a2 = a2, a1
		p1, p2 = p2, p1
	}

	var h maphash.Hash
	h.SetSeed(a.seed)
	h.Write(a1[:])
	h.Write(a2[:])
	h.Write([]byte{byte(p1 >> 8), byte(p1), byte(p2 >> 8), byte(p2), byte(k.Proto)})
	return a.shards[h.Sum64()%uint64(a.shardCount)]
}

// Update accounts one packet. A packet matching an existing key counts as transmitted, one
// matching the reverse of an existing key counts as received, and otherwise a new entry is
// created in the packet's direction.
func (a *Aggregator) Update(rec model.Record) {
	fwd := rec.Key()
	s := a.getShard(fwd)
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.flows[fwd]; ok {
		st.BytesTx += rec.WireLength
		st.PacketsTx++
		return
	}
	if st, ok := s.flows[fwd.Reverse()]; ok {
		st.BytesRx += rec.WireLength
		st.PacketsRx++
		return
	}
	s.flows[fwd] = &model.FlowStats{BytesTx: rec.WireLength, PacketsTx: 1}
}

// ResetCounters zeroes every entry and keeps all keys.
func (a *Aggregator) ResetCounters() {
	for _, s := range a.shards {
		s.mu.Lock()
		s.reset()
		s.mu.Unlock()
	}
}

// TrimIdle removes the entries whose counters are all zero and returns how many were removed.
func (a *Aggregator) TrimIdle() int {
	removed := 0
	for _, s := range a.shards {
		s.mu.Lock()
		removed += s.trim()
		s.mu.Unlock()
	}
	return removed
}

// Snapshot returns a deep copy of the table.
func (a *Aggregator) Snapshot() model.Snapshot {
	var snap model.Snapshot
	for _, s := range a.shards {
		s.mu.Lock()
		snap = s.appendTo(snap)
		s.mu.Unlock()
	}
	return snap
}

// Rotate runs the window boundary: trim idle entries, copy the table, zero the counters. All
// shards stay locked for the whole sequence, so no Update lands between the three steps.
func (a *Aggregator) Rotate() (snap model.Snapshot, trimmed int) {
	for _, s := range a.shards {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range a.shards {
			s.mu.Unlock()
		}
	}()

	for _, s := range a.shards {
		trimmed += s.trim()
	}
	for _, s := range a.shards {
		snap = s.appendTo(snap)
	}
	for _, s := range a.shards {
		s.reset()
	}
	return snap, trimmed
}

// Len returns the number of entries in the table.
func (a *Aggregator) Len() int {
	n := 0
	for _, s := range a.shards {
		s.mu.Lock()
		n += len(s.flows)
		s.mu.Unlock()
	}
	return n
}

// Get returns a copy of the stats stored under exactly k.
func (a *Aggregator) Get(k model.FlowKey) (model.FlowStats, bool) {
	s := a.getShard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.flows[k]; ok {
		return *st, true
	}
	return model.FlowStats{}, false
}

func (s *shard) trim() int {
	n := 0
	for k, st := range s.flows {
		if st.IsZero() {
			delete(s.flows, k)
			n++
		}
	}
	return n
}

func (s *shard) reset() {
	for _, st := range s.flows {
		*st = model.FlowStats{}
	}
}

func (s *shard) appendTo(snap model.Snapshot) model.Snapshot {
	for k, st := range s.flows {
		snap = append(snap, model.Entry{Key: k, Stats: *st})
	}
	return snap
}
