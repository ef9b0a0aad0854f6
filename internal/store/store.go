// Package store durably records decoded packets to a single SQLite file
// and answers offline queries against it.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"netwatch/internal/model"
)

const (
	// BatchSize is the queued-row count that triggers an early flush.
	BatchSize = 1000
	// FlushInterval is the longest the writer waits before flushing a
	// partial batch.
	FlushInterval = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS packets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	source_address TEXT NOT NULL,
	destination_address TEXT NOT NULL,
	source_port INTEGER,
	destination_port INTEGER,
	length INTEGER NOT NULL,
	is_fragmented BOOLEAN NOT NULL,
	is_malformed BOOLEAN NOT NULL,
	sequence_number INTEGER,
	acknowledgment_number INTEGER,
	window_size INTEGER,
	ttl INTEGER,
	tos INTEGER,
	payload BLOB
);
CREATE INDEX IF NOT EXISTS idx_packets_timestamp ON packets(timestamp);
CREATE INDEX IF NOT EXISTS idx_packets_protocol ON packets(protocol);
CREATE INDEX IF NOT EXISTS idx_packets_source ON packets(source_address);
CREATE INDEX IF NOT EXISTS idx_packets_destination ON packets(destination_address);
`

const insertSQL = `
INSERT INTO packets (
	timestamp, protocol, source_address, destination_address,
	source_port, destination_port, length, is_fragmented,
	is_malformed, sequence_number, acknowledgment_number,
	window_size, ttl, tos, payload
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Store owns the database handle and the batching writer goroutine. The
// queue itself is a plain mutex-guarded slice rather than a channel, so
// that Enqueue never drops a row under load; the channel's job here is
// only to wake the writer early, matching the BATCH_SIZE/FLUSH_INTERVAL
// design.
type Store struct {
	db  *sql.DB
	log *logrus.Logger

	mu     sync.Mutex
	queue  []*model.PacketRecord
	closed bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// Open creates or attaches to the SQLite file at path, creates the schema
// if missing, and starts the batching writer. A failure here is a fatal
// startup fault.
func Open(path string, log *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	s := &Store{
		db:   db,
		log:  log,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Enqueue hands one decoded packet to the writer. It takes the queue's
// own exclusive region briefly and never performs I/O itself.
func (s *Store) Enqueue(p *model.PacketRecord) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, p)
	full := len(s.queue) >= BatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.wake:
			s.flush()
		case <-ticker.C:
			s.flush()
		case <-s.stop:
			s.flush()
			return
		}
	}
}

func (s *Store) flush() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if err := s.insertBatch(batch); err != nil {
		// Roll back already happened inside insertBatch; retry once on
		// this same tick, per the batched-writer contract.
		if err2 := s.insertBatch(batch); err2 != nil {
			if s.log != nil {
				s.log.WithError(err2).Errorf("store: dropping batch of %d rows after retry", len(batch))
			}
		}
	}
}

func (s *Store) insertBatch(batch []*model.PacketRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, p := range batch {
		var payload any
		if pl := p.Payload(); len(pl) > 0 {
			payload = pl
		}
		_, err = stmt.Exec(
			p.Timestamp.UnixMilli(),
			p.Protocol.String(),
			p.SourceAddress,
			p.DestinationAddress,
			nullablePort(p.SourcePort),
			nullablePort(p.DestinationPort),
			p.Length,
			p.IsFragmented,
			p.IsMalformed,
			p.SequenceNumber,
			p.AcknowledgmentNum,
			p.WindowSize,
			p.TTL,
			p.TOS,
			payload,
		)
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()
	return tx.Commit()
}

func nullablePort(port uint16) any {
	if port == 0 {
		return nil
	}
	return port
}

// Flush forces an immediate synchronous write of any queued rows.
func (s *Store) Flush() {
	s.flush()
}

// Close stops accepting new rows, flushes anything queued, and releases
// the database handle. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	return s.db.Close()
}
