// Package pipeline owns the capture source and routes each decoded
// packet to the statistics engine, the persistence layer, and any
// registered subscribers.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"netwatch/internal/decoder"
	"netwatch/internal/model"
	"netwatch/internal/stats"
	"netwatch/internal/store"
	"netwatch/pkg/capture"
)

// frameSource is the capture dependency the pipeline drives, narrowed to
// what the pipeline itself calls. *capture.Source satisfies it; tests
// substitute a fake to exercise dispatch without a real NIC.
type frameSource interface {
	NextFrame() (data []byte, captureLength int, timestamp time.Time, err error)
	Close()
}

// State is the pipeline's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// CallbackToken identifies a registered subscriber for later removal.
// Callers must not attempt to compare callbacks by identity; the token
// returned by AddPacketCallback is the only valid handle.
type CallbackToken uint64

const intakeBufferSize = 4096

type callbackEntry struct {
	token CallbackToken
	fn    func(*model.PacketRecord)
}

// Pipeline is the capture/dispatch engine for one interface at a time.
// Monitoring more than one interface concurrently requires more than
// one Pipeline.
type Pipeline struct {
	stats *stats.Engine
	store *store.Store
	log   *logrus.Logger

	mu            sync.Mutex
	state         State
	interfaceName string
	filter        string
	source        frameSource

	open func(interfaceName, filter string) (frameSource, error)

	callbacksMu sync.Mutex
	callbacks   []callbackEntry
	nextToken   CallbackToken

	wg sync.WaitGroup
}

// New returns an IDLE pipeline wired to the given statistics engine and
// persistence store.
func New(statsEngine *stats.Engine, st *store.Store, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		stats: statsEngine,
		store: st,
		log:   log,
		open: func(interfaceName, filter string) (frameSource, error) {
			return capture.OpenLive(interfaceName, filter)
		},
	}
}

// SetInterface configures the capture interface to use on the next
// Start. It has no effect while RUNNING or STOPPING.
func (p *Pipeline) SetInterface(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interfaceName = name
}

// SetFilter records the BPF filter expression applied on the next Start.
// Per the documented contract, calling this while the pipeline is
// RUNNING has no defined effect on the in-progress capture.
func (p *Pipeline) SetFilter(expr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = expr
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start is idempotent: calling it while already RUNNING or STOPPING is a
// no-op. A failure to open the interface or compile the filter is a
// fatal startup fault, returned to the caller.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		return nil
	}

	if p.interfaceName == "" {
		p.mu.Unlock()
		return errors.New("pipeline: no interface configured")
	}

	source, err := p.open(p.interfaceName, p.filter)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: start: %w", err)
	}

	p.source = source
	p.state = Running
	p.mu.Unlock()

	intake := make(chan *model.PacketRecord, intakeBufferSize)
	subscriberCh := make(chan *model.PacketRecord, intakeBufferSize)

	p.wg.Add(3)
	go p.captureLoop(source, intake)
	go p.dispatchLoop(intake, subscriberCh)
	go p.subscriberLoop(subscriberCh)

	return nil
}

// Stop is idempotent: calling it while IDLE is a no-op. It closes the
// capture handle, drains every stage, joins all workers, and flushes the
// store's queued rows before returning.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return
	}
	p.state = Stopping
	source := p.source
	p.mu.Unlock()

	source.Close()
	p.wg.Wait()
	p.store.Flush()

	p.mu.Lock()
	p.state = Idle
	p.source = nil
	p.mu.Unlock()
}

func (p *Pipeline) captureLoop(source frameSource, intake chan<- *model.PacketRecord) {
	defer p.wg.Done()
	defer close(intake)

	for {
		data, capLen, timestamp, err := source.NextFrame()
		if err != nil {
			if errors.Is(err, capture.ErrTimeout) {
				continue
			}
			// Either the handle was closed by Stop or a genuine read
			// fault occurred; either way capture has nothing more to
			// contribute.
			return
		}
		rec := decoder.Decode(data, capLen, timestamp)
		intake <- rec
	}
}

// dispatchLoop is the statistics updater and the persistence enqueuer:
// for any one packet both are reached before the next packet is read
// from intake. Subscriber delivery happens on its own goroutine so a
// slow callback cannot stall analysis or storage.
func (p *Pipeline) dispatchLoop(intake <-chan *model.PacketRecord, subscriberCh chan<- *model.PacketRecord) {
	defer p.wg.Done()
	defer close(subscriberCh)

	for rec := range intake {
		p.stats.Update(rec)
		p.store.Enqueue(rec)
		subscriberCh <- rec
	}
}

func (p *Pipeline) subscriberLoop(subscriberCh <-chan *model.PacketRecord) {
	defer p.wg.Done()
	for rec := range subscriberCh {
		p.invokeCallbacks(rec)
	}
}

func (p *Pipeline) invokeCallbacks(rec *model.PacketRecord) {
	p.callbacksMu.Lock()
	fns := make([]callbackEntry, len(p.callbacks))
	copy(fns, p.callbacks)
	p.callbacksMu.Unlock()

	for _, entry := range fns {
		entry.fn(rec)
	}
}

// AddPacketCallback registers fn to be invoked once per packet, in
// registration order relative to other subscribers, and returns a token
// for later removal. Structural comparison of callbacks is not
// supported; keep the token.
func (p *Pipeline) AddPacketCallback(fn func(*model.PacketRecord)) CallbackToken {
	p.callbacksMu.Lock()
	defer p.callbacksMu.Unlock()
	p.nextToken++
	token := p.nextToken
	p.callbacks = append(p.callbacks, callbackEntry{token: token, fn: fn})
	return token
}

// RemovePacketCallback deregisters the subscriber identified by token.
// Removing an unknown or already-removed token is a no-op.
func (p *Pipeline) RemovePacketCallback(token CallbackToken) {
	p.callbacksMu.Lock()
	defer p.callbacksMu.Unlock()
	for i, entry := range p.callbacks {
		if entry.token == token {
			p.callbacks = append(p.callbacks[:i], p.callbacks[i+1:]...)
			return
		}
	}
}
