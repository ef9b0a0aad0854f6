// Package stats accumulates the aggregate views of traffic the display
// surfaces read: totals, per-protocol/host/connection counters, a
// retransmission count per flow, and a bandwidth sample series.
package stats

import (
	"sort"
	"sync"
	"time"

	"netwatch/internal/model"
)

const (
	// MaxBandwidthHistory bounds the bandwidth sample series.
	MaxBandwidthHistory = 3600

	// ConnectionTimeout is the idle window after which a connection is
	// evicted from the active set.
	ConnectionTimeout = 5 * time.Minute

	// sweepEvery bounds how often the eviction sweep runs, in packets
	// processed, so that it does not cost anything on every update.
	sweepEvery = 256
)

// ProtocolCounters mirrors one protocol's slice of the global totals.
type ProtocolCounters struct {
	PacketCount uint64
	ByteCount   uint64
	ErrorCount  uint64
	FirstSeen   time.Time
	LastSeen    time.Time
}

// HostStats aggregates everything seen for one textual address.
type HostStats struct {
	PacketCount   uint64
	ByteCount     uint64
	FirstSeen     time.Time
	LastSeen      time.Time
	ProtocolStats map[model.Protocol]ProtocolCounters
}

func newHostStats() *HostStats {
	return &HostStats{ProtocolStats: make(map[model.Protocol]ProtocolCounters)}
}

// ConnectionStats tracks one canonical flow.
type ConnectionStats struct {
	PacketCount          uint64
	ByteCount            uint64
	RetransmissionCount  uint64
	StartTime            time.Time
	LastSeen             time.Time
	IsActive             bool
}

// BandwidthSample is one entry of the bandwidth history.
type BandwidthSample struct {
	At   time.Time
	Bits float64
}

// Engine owns every aggregate described above. Updates are serialized
// under a single exclusive region, deliberately simpler than a
// sharded-map design since the engine's own callers (the pipeline's
// single statistics-updater goroutine) never contend for the write path;
// the lock exists for the benefit of concurrent snapshot readers.
type Engine struct {
	mu sync.Mutex

	totalPackets uint64
	totalBytes   uint64
	totalErrors  uint64

	protocolStats map[model.Protocol]ProtocolCounters
	hostStats     map[string]*HostStats
	connStats     map[string]*ConnectionStats
	lastSeq       map[string]uint32

	currentBandwidth  float64
	averageBandwidth  float64
	lastBandwidthAt   time.Time
	bandwidthHistory  []BandwidthSample

	updatesSinceSweep int
}

// New returns an Engine with its bandwidth window anchored at now.
func New() *Engine {
	return &Engine{
		protocolStats:   make(map[model.Protocol]ProtocolCounters),
		hostStats:       make(map[string]*HostStats),
		connStats:       make(map[string]*ConnectionStats),
		lastSeq:         make(map[string]uint32),
		lastBandwidthAt: time.Now(),
	}
}

// Update folds one decoded packet into every aggregate, per the §4.E
// algorithm: totals, protocol counters, host counters, connection
// tracking with the retransmission heuristic, the bandwidth sampler, and
// a throttled eviction sweep.
func (e *Engine) Update(p *model.PacketRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalPackets++
	e.totalBytes += uint64(p.Length)
	if p.IsMalformed {
		e.totalErrors++
	}

	e.updateProtocolStats(p)
	e.updateHostStats(p)
	e.updateConnectionStats(p)
	e.updateBandwidth(p)

	e.updatesSinceSweep++
	if e.updatesSinceSweep >= sweepEvery {
		e.sweepConnections(p.Timestamp)
		e.updatesSinceSweep = 0
	}
}

func (e *Engine) updateProtocolStats(p *model.PacketRecord) {
	c := e.protocolStats[p.Protocol]
	c.PacketCount++
	c.ByteCount += uint64(p.Length)
	if p.IsMalformed {
		c.ErrorCount++
	}
	if c.PacketCount == 1 {
		c.FirstSeen = p.Timestamp
	}
	c.LastSeen = p.Timestamp
	e.protocolStats[p.Protocol] = c
}

func (e *Engine) updateHostStats(p *model.PacketRecord) {
	e.bumpHost(p.SourceAddress, p)
	e.bumpHost(p.DestinationAddress, p)
}

func (e *Engine) bumpHost(addr string, p *model.PacketRecord) {
	if addr == "" {
		return
	}
	h, ok := e.hostStats[addr]
	if !ok {
		h = newHostStats()
		e.hostStats[addr] = h
	}
	h.PacketCount++
	h.ByteCount += uint64(p.Length)
	if h.PacketCount == 1 {
		h.FirstSeen = p.Timestamp
	}
	h.LastSeen = p.Timestamp

	pc := h.ProtocolStats[p.Protocol]
	pc.PacketCount++
	pc.ByteCount += uint64(p.Length)
	if pc.PacketCount == 1 {
		pc.FirstSeen = p.Timestamp
	}
	pc.LastSeen = p.Timestamp
	h.ProtocolStats[p.Protocol] = pc
}

func (e *Engine) updateConnectionStats(p *model.PacketRecord) {
	if !p.IsTCP() && !p.IsUDP() {
		return
	}

	flowID := model.FlowID(p)
	c, ok := e.connStats[flowID]
	if !ok {
		c = &ConnectionStats{}
		e.connStats[flowID] = c
	}
	c.PacketCount++
	c.ByteCount += uint64(p.Length)
	if c.PacketCount == 1 {
		c.StartTime = p.Timestamp
		c.IsActive = true
	}
	c.LastSeen = p.Timestamp
	c.IsActive = true

	// Retransmission heuristic: a TCP segment whose sequence number
	// equals the previous observation on the same flow. This ignores
	// real TCP semantics (retransmission vs. keep-alive vs. window
	// probe) by design; it is preserved exactly as specified, per flow
	// rather than shared across all flows.
	if p.IsTCP() {
		if last, seen := e.lastSeq[flowID]; seen && p.SequenceNumber == last {
			c.RetransmissionCount++
		}
		e.lastSeq[flowID] = p.SequenceNumber
	}
}

func (e *Engine) updateBandwidth(p *model.PacketRecord) {
	now := p.Timestamp
	if now.Sub(e.lastBandwidthAt) >= time.Second {
		e.bandwidthHistory = append(e.bandwidthHistory, BandwidthSample{At: now, Bits: e.currentBandwidth})
		if len(e.bandwidthHistory) > MaxBandwidthHistory {
			e.bandwidthHistory = e.bandwidthHistory[len(e.bandwidthHistory)-MaxBandwidthHistory:]
		}

		var sum float64
		for _, s := range e.bandwidthHistory {
			sum += s.Bits
		}
		e.averageBandwidth = sum / float64(len(e.bandwidthHistory))

		e.currentBandwidth = 0
		e.lastBandwidthAt = now
	}

	e.currentBandwidth += float64(p.Length) * 8
}

func (e *Engine) sweepConnections(now time.Time) {
	for id, c := range e.connStats {
		if now.Sub(c.LastSeen) > ConnectionTimeout {
			delete(e.connStats, id)
			delete(e.lastSeq, id)
		}
	}
}

// Reset clears every aggregate and restarts the bandwidth window at now.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalPackets = 0
	e.totalBytes = 0
	e.totalErrors = 0
	e.currentBandwidth = 0
	e.averageBandwidth = 0
	e.protocolStats = make(map[model.Protocol]ProtocolCounters)
	e.hostStats = make(map[string]*HostStats)
	e.connStats = make(map[string]*ConnectionStats)
	e.lastSeq = make(map[string]uint32)
	e.bandwidthHistory = nil
	e.lastBandwidthAt = time.Now()
	e.updatesSinceSweep = 0
}

// Totals returns the global packet/byte/error counts.
func (e *Engine) Totals() (packets, bytes, errors uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalPackets, e.totalBytes, e.totalErrors
}

// ProtocolStat returns a copy of the counters for one protocol.
func (e *Engine) ProtocolStat(p model.Protocol) ProtocolCounters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.protocolStats[p]
}

// HostStat returns an owned copy of one host's stats, or the zero value
// if unseen.
func (e *Engine) HostStat(addr string) HostStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.hostStats[addr]
	if !ok {
		return HostStats{ProtocolStats: map[model.Protocol]ProtocolCounters{}}
	}
	return cloneHostStats(h)
}

func cloneHostStats(h *HostStats) HostStats {
	out := *h
	out.ProtocolStats = make(map[model.Protocol]ProtocolCounters, len(h.ProtocolStats))
	for k, v := range h.ProtocolStats {
		out.ProtocolStats[k] = v
	}
	return out
}

// ConnectionStat returns a copy of one flow's stats, or the zero value
// if unknown.
func (e *Engine) ConnectionStat(flowID string) ConnectionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.connStats[flowID]; ok {
		return *c
	}
	return ConnectionStats{}
}

// ActiveConnections returns the flow ids currently marked active.
func (e *Engine) ActiveConnections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.connStats))
	for id, c := range e.connStats {
		if c.IsActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// rankedEntry is the common shape of a top-N result.
type rankedEntry[K any] struct {
	key   K
	count uint64
	order int
}

// TopProtocols returns up to n protocols ranked by packet count, ties
// broken by the order the protocol was first seen.
func (e *Engine) TopProtocols(n int) []struct {
	Protocol model.Protocol
	Count    uint64
} {
	e.mu.Lock()
	defer e.mu.Unlock()

	order := e.protocolInsertionOrder()
	entries := make([]rankedEntry[model.Protocol], 0, len(e.protocolStats))
	for proto, c := range e.protocolStats {
		entries = append(entries, rankedEntry[model.Protocol]{key: proto, count: c.PacketCount, order: order[proto]})
	}
	sortRanked(entries)
	return truncateProtocol(entries, n)
}

// protocolInsertionOrder derives a tie-break ordering from first-seen
// time, since the engine does not separately track insertion sequence
// numbers. Protocols first seen at the same instant have no defined
// order relative to each other.
func (e *Engine) protocolInsertionOrder() map[model.Protocol]int {
	type kv struct {
		proto model.Protocol
		at    time.Time
	}
	kvs := make([]kv, 0, len(e.protocolStats))
	for proto, c := range e.protocolStats {
		kvs = append(kvs, kv{proto, c.FirstSeen})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].at.Before(kvs[j].at) })
	order := make(map[model.Protocol]int, len(kvs))
	for i, k := range kvs {
		order[k.proto] = i
	}
	return order
}

func sortRanked[K any](entries []rankedEntry[K]) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].order < entries[j].order
	})
}

func truncateProtocol(entries []rankedEntry[model.Protocol], n int) []struct {
	Protocol model.Protocol
	Count    uint64
} {
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	out := make([]struct {
		Protocol model.Protocol
		Count    uint64
	}, len(entries))
	for i, e := range entries {
		out[i].Protocol = e.key
		out[i].Count = e.count
	}
	return out
}

// TopErrors returns up to n protocols ranked by error count, excluding
// protocols that have produced no errors, ties broken by first-seen order.
func (e *Engine) TopErrors(n int) []struct {
	Protocol model.Protocol
	Count    uint64
} {
	e.mu.Lock()
	defer e.mu.Unlock()

	order := e.protocolInsertionOrder()
	entries := make([]rankedEntry[model.Protocol], 0, len(e.protocolStats))
	for proto, c := range e.protocolStats {
		if c.ErrorCount == 0 {
			continue
		}
		entries = append(entries, rankedEntry[model.Protocol]{key: proto, count: c.ErrorCount, order: order[proto]})
	}
	sortRanked(entries)
	return truncateProtocol(entries, n)
}

// TopHosts returns up to n hosts ranked by packet count, ties broken by
// first-seen order.
func (e *Engine) TopHosts(n int) []struct {
	Host  string
	Count uint64
} {
	e.mu.Lock()
	defer e.mu.Unlock()

	type kv struct {
		host string
		at   time.Time
	}
	kvs := make([]kv, 0, len(e.hostStats))
	for host, h := range e.hostStats {
		kvs = append(kvs, kv{host, h.FirstSeen})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].at.Before(kvs[j].at) })
	order := make(map[string]int, len(kvs))
	for i, k := range kvs {
		order[k.host] = i
	}

	entries := make([]rankedEntry[string], 0, len(e.hostStats))
	for host, h := range e.hostStats {
		entries = append(entries, rankedEntry[string]{key: host, count: h.PacketCount, order: order[host]})
	}
	sortRanked(entries)
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	out := make([]struct {
		Host  string
		Count uint64
	}, len(entries))
	for i, e := range entries {
		out[i].Host = e.key
		out[i].Count = e.count
	}
	return out
}

// TopConnections returns up to n flows ranked by packet count.
func (e *Engine) TopConnections(n int) []struct {
	FlowID string
	Count  uint64
} {
	e.mu.Lock()
	defer e.mu.Unlock()

	type kv struct {
		id string
		at time.Time
	}
	kvs := make([]kv, 0, len(e.connStats))
	for id, c := range e.connStats {
		kvs = append(kvs, kv{id, c.StartTime})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].at.Before(kvs[j].at) })
	order := make(map[string]int, len(kvs))
	for i, k := range kvs {
		order[k.id] = i
	}

	entries := make([]rankedEntry[string], 0, len(e.connStats))
	for id, c := range e.connStats {
		entries = append(entries, rankedEntry[string]{key: id, count: c.PacketCount, order: order[id]})
	}
	sortRanked(entries)
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	out := make([]struct {
		FlowID string
		Count  uint64
	}, len(entries))
	for i, e := range entries {
		out[i].FlowID = e.key
		out[i].Count = e.count
	}
	return out
}

// BandwidthHistory returns an owned copy of the sample series.
func (e *Engine) BandwidthHistory() []BandwidthSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]BandwidthSample, len(e.bandwidthHistory))
	copy(out, e.bandwidthHistory)
	return out
}

// AverageBandwidth returns the mean of the current bandwidth history.
func (e *Engine) AverageBandwidth() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.averageBandwidth
}

// CurrentBandwidth returns the in-flight accumulator for the still-open
// one-second window.
func (e *Engine) CurrentBandwidth() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentBandwidth
}

// Snapshot is a consistent, owned point-in-time copy of the totals, the
// bandwidth figures and history, and the active flow ids, cheap enough
// for a display surface to poll at ~1 Hz. Per-protocol, per-host and
// per-connection counters are not included; the Top* and *Stat methods
// return those.
type Snapshot struct {
	TotalPackets     uint64
	TotalBytes       uint64
	TotalErrors      uint64
	CurrentBandwidth float64
	AverageBandwidth float64
	BandwidthHistory []BandwidthSample
	ActiveFlows      []string
}

// TakeSnapshot returns the full Snapshot under one lock acquisition.
func (e *Engine) TakeSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]BandwidthSample, len(e.bandwidthHistory))
	copy(history, e.bandwidthHistory)

	active := make([]string, 0, len(e.connStats))
	for id, c := range e.connStats {
		if c.IsActive {
			active = append(active, id)
		}
	}

	return Snapshot{
		TotalPackets:     e.totalPackets,
		TotalBytes:       e.totalBytes,
		TotalErrors:      e.totalErrors,
		CurrentBandwidth: e.currentBandwidth,
		AverageBandwidth: e.averageBandwidth,
		BandwidthHistory: history,
		ActiveFlows:      active,
	}
}
