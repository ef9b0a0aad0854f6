package store

import (
	"database/sql"
	"fmt"
	"time"

	"netwatch/internal/model"
)

// Row mirrors a persisted packet row.
type Row struct {
	ID                 int64
	Timestamp          time.Time
	Protocol           model.Protocol
	SourceAddress      string
	DestinationAddress string
	SourcePort         uint16
	DestinationPort    uint16
	Length             int
	IsFragmented       bool
	IsMalformed        bool
	SequenceNumber     uint32
	AcknowledgmentNum  uint32
	WindowSize         uint16
	TTL                uint8
	TOS                uint8
	Payload            []byte
}

const selectColumns = `
	id, timestamp, protocol, source_address, destination_address,
	source_port, destination_port, length, is_fragmented, is_malformed,
	sequence_number, acknowledgment_number, window_size, ttl, tos, payload
`

func scanRow(rows *sql.Rows) (Row, error) {
	var r Row
	var protocol string
	var srcPort, dstPort, seq, ack, win, ttl, tos sql.NullInt64
	var payload []byte
	var tsMillis int64

	err := rows.Scan(
		&r.ID, &tsMillis, &protocol, &r.SourceAddress, &r.DestinationAddress,
		&srcPort, &dstPort, &r.Length, &r.IsFragmented, &r.IsMalformed,
		&seq, &ack, &win, &ttl, &tos, &payload,
	)
	if err != nil {
		return Row{}, err
	}

	r.Timestamp = time.UnixMilli(tsMillis)
	r.Protocol = model.ParseProtocol(protocol)
	r.SourcePort = uint16(srcPort.Int64)
	r.DestinationPort = uint16(dstPort.Int64)
	r.SequenceNumber = uint32(seq.Int64)
	r.AcknowledgmentNum = uint32(ack.Int64)
	r.WindowSize = uint16(win.Int64)
	r.TTL = uint8(ttl.Int64)
	r.TOS = uint8(tos.Int64)
	r.Payload = payload
	return r, nil
}

// ByProtocol returns up to limit rows for the given protocol, most
// recent first.
func (s *Store) ByProtocol(protocol model.Protocol, limit int) ([]Row, error) {
	return s.query("SELECT "+selectColumns+" FROM packets WHERE protocol = ? ORDER BY timestamp DESC LIMIT ?",
		protocol.String(), limit)
}

// ByHost returns up to limit rows where host appears as either endpoint,
// most recent first.
func (s *Store) ByHost(host string, limit int) ([]Row, error) {
	return s.query("SELECT "+selectColumns+" FROM packets WHERE source_address = ? OR destination_address = ? ORDER BY timestamp DESC LIMIT ?",
		host, host, limit)
}

// ByTimeRange returns up to limit rows with timestamp in [from, to],
// most recent first.
func (s *Store) ByTimeRange(from, to time.Time, limit int) ([]Row, error) {
	return s.query("SELECT "+selectColumns+" FROM packets WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp DESC LIMIT ?",
		from.UnixMilli(), to.UnixMilli(), limit)
}

// ByFlow returns up to limit rows belonging to either direction of the
// (source, destination) pair, most recent first.
func (s *Store) ByFlow(hostA, hostB string, limit int) ([]Row, error) {
	return s.query(`SELECT `+selectColumns+` FROM packets
		WHERE (source_address = ? AND destination_address = ?)
		   OR (source_address = ? AND destination_address = ?)
		ORDER BY timestamp DESC LIMIT ?`,
		hostA, hostB, hostB, hostA, limit)
}

func (s *Store) query(sqlText string, args ...any) ([]Row, error) {
	rows, err := s.db.Query(sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan failed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Aggregates bundles the distribution queries the display surfaces ask
// for alongside the live statistics engine's view.
type Aggregates struct {
	TotalPackets   int64
	TotalBytes     int64
	ByProtocol     map[string]int64
	ByHost         map[string]int64
	ByFlow         map[string]int64
}

// QueryAggregates computes the persisted-row distributions in four
// queries: total count and total bytes together, per-protocol count,
// per-host count, and per-flow count grouped by canonical (min, max) host
// pair.
func (s *Store) QueryAggregates() (Aggregates, error) {
	agg := Aggregates{
		ByProtocol: make(map[string]int64),
		ByHost:     make(map[string]int64),
		ByFlow:     make(map[string]int64),
	}

	row := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(length), 0) FROM packets")
	if err := row.Scan(&agg.TotalPackets, &agg.TotalBytes); err != nil {
		return Aggregates{}, fmt.Errorf("store: aggregate totals: %w", err)
	}

	protoRows, err := s.db.Query("SELECT protocol, COUNT(*) FROM packets GROUP BY protocol")
	if err != nil {
		return Aggregates{}, fmt.Errorf("store: aggregate by protocol: %w", err)
	}
	for protoRows.Next() {
		var proto string
		var count int64
		if err := protoRows.Scan(&proto, &count); err != nil {
			protoRows.Close()
			return Aggregates{}, err
		}
		agg.ByProtocol[proto] = count
	}
	protoRows.Close()

	hostRows, err := s.db.Query(`
		SELECT host, COUNT(*) FROM (
			SELECT source_address AS host FROM packets
			UNION ALL
			SELECT destination_address AS host FROM packets
		) GROUP BY host`)
	if err != nil {
		return Aggregates{}, fmt.Errorf("store: aggregate by host: %w", err)
	}
	for hostRows.Next() {
		var host string
		var count int64
		if err := hostRows.Scan(&host, &count); err != nil {
			hostRows.Close()
			return Aggregates{}, err
		}
		agg.ByHost[host] = count
	}
	hostRows.Close()

	flowRows, err := s.db.Query(`
		SELECT
			CASE WHEN source_address < destination_address
				THEN source_address || '-' || destination_address
				ELSE destination_address || '-' || source_address
			END AS flow,
			COUNT(*)
		FROM packets
		GROUP BY flow`)
	if err != nil {
		return Aggregates{}, fmt.Errorf("store: aggregate by flow: %w", err)
	}
	for flowRows.Next() {
		var flow string
		var count int64
		if err := flowRows.Scan(&flow, &count); err != nil {
			flowRows.Close()
			return Aggregates{}, err
		}
		agg.ByFlow[flow] = count
	}
	flowRows.Close()

	return agg, nil
}

// Count returns the total number of persisted rows, used by tests to
// confirm the flush-on-stop invariant.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM packets").Scan(&n)
	return n, err
}
