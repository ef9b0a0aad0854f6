// Package netwatch is the public facade over capture, decoding,
// statistics, and persistence. Monitor is the one type callers need.
package netwatch

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"netwatch/internal/model"
	"netwatch/internal/pipeline"
	"netwatch/internal/stats"
	"netwatch/internal/store"
)

// Config selects the capture source and the persistence file a Monitor
// is built around.
type Config struct {
	// Interface is the capture device name (e.g. "eth0").
	Interface string
	// Filter is a BPF filter expression. Empty captures everything.
	Filter string
	// StorePath is the SQLite database file the monitor persists to.
	StorePath string
}

// Monitor bundles one pipeline, one statistics engine, and one store. No
// component here holds a back-reference to the Monitor; it is only ever
// passed in as a call parameter where one is needed.
type Monitor struct {
	pipeline *pipeline.Pipeline
	stats    *stats.Engine
	store    *store.Store
}

// Open constructs a Monitor: it opens the persistence store immediately
// (a failure here is a fatal startup fault) and configures, but does not
// start, the capture pipeline.
func Open(cfg Config, log *logrus.Logger) (*Monitor, error) {
	st, err := store.Open(cfg.StorePath, log)
	if err != nil {
		return nil, fmt.Errorf("netwatch: open store: %w", err)
	}

	statsEngine := stats.New()
	pl := pipeline.New(statsEngine, st, log)
	pl.SetInterface(cfg.Interface)
	pl.SetFilter(cfg.Filter)

	return &Monitor{pipeline: pl, stats: statsEngine, store: st}, nil
}

// SetInterface reconfigures the capture device for the next Start.
func (m *Monitor) SetInterface(name string) {
	m.pipeline.SetInterface(name)
}

// SetFilter reconfigures the BPF filter for the next Start. Calling it
// while the monitor is running has no defined effect on the capture
// already in progress.
func (m *Monitor) SetFilter(expr string) {
	m.pipeline.SetFilter(expr)
}

// Start begins capturing. It is idempotent and returns a fatal startup
// fault if the interface cannot be opened.
func (m *Monitor) Start() error {
	return m.pipeline.Start()
}

// Stop halts capture and blocks until every in-flight packet has been
// accounted for by the statistics engine and the queued rows have been
// flushed to the store. It does not close the store; Close does.
func (m *Monitor) Stop() {
	m.pipeline.Stop()
}

// State reports the pipeline's lifecycle state.
func (m *Monitor) State() pipeline.State {
	return m.pipeline.State()
}

// AddPacketCallback registers fn to observe every packet in arrival
// order, returning a token for RemovePacketCallback.
func (m *Monitor) AddPacketCallback(fn func(*model.PacketRecord)) pipeline.CallbackToken {
	return m.pipeline.AddPacketCallback(fn)
}

// RemovePacketCallback deregisters a previously registered callback.
func (m *Monitor) RemovePacketCallback(token pipeline.CallbackToken) {
	m.pipeline.RemovePacketCallback(token)
}

// StatisticsSnapshot returns a consistent point-in-time copy of the
// aggregate statistics.
func (m *Monitor) StatisticsSnapshot() stats.Snapshot {
	return m.stats.TakeSnapshot()
}

// TopProtocols, TopHosts, TopConnections, and TopErrors expose the
// engine's ranked views directly; n <= 0 returns every entry.
func (m *Monitor) TopProtocols(n int) []struct {
	Protocol model.Protocol
	Count    uint64
} {
	return m.stats.TopProtocols(n)
}

func (m *Monitor) TopHosts(n int) []struct {
	Host  string
	Count uint64
} {
	return m.stats.TopHosts(n)
}

func (m *Monitor) TopConnections(n int) []struct {
	FlowID string
	Count  uint64
} {
	return m.stats.TopConnections(n)
}

// TopErrors ranks protocols by how many malformed/error packets they have
// produced, excluding protocols with none.
func (m *Monitor) TopErrors(n int) []struct {
	Protocol model.Protocol
	Count    uint64
} {
	return m.stats.TopErrors(n)
}

// QueryByProtocol, QueryByHost, QueryByTimeRange, and QueryByFlow answer
// offline questions against the persisted record, independent of the
// in-memory statistics engine.
func (m *Monitor) QueryByProtocol(protocol model.Protocol, limit int) ([]store.Row, error) {
	return m.store.ByProtocol(protocol, limit)
}

func (m *Monitor) QueryByHost(host string, limit int) ([]store.Row, error) {
	return m.store.ByHost(host, limit)
}

func (m *Monitor) QueryByTimeRange(from, to time.Time, limit int) ([]store.Row, error) {
	return m.store.ByTimeRange(from, to, limit)
}

func (m *Monitor) QueryByFlow(hostA, hostB string, limit int) ([]store.Row, error) {
	return m.store.ByFlow(hostA, hostB, limit)
}

// QueryAggregates returns the store's own aggregate view of everything
// persisted so far.
func (m *Monitor) QueryAggregates() (store.Aggregates, error) {
	return m.store.QueryAggregates()
}

// Close stops capture if still running and releases the persistence
// store. Close is idempotent.
func (m *Monitor) Close() error {
	m.pipeline.Stop()
	return m.store.Close()
}
