// Package capture opens a link-layer interface or an offline capture file
// and yields raw frames with their kernel timestamps.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/pcap"
)

const (
	snapshotLen int32 = 1600
	promiscuous       = true
)

// ErrTimeout is returned by NextFrame when the capture device's read
// timeout elapses without a frame. It is retryable: callers should loop
// and call NextFrame again rather than treating it as fatal.
var ErrTimeout = errors.New("capture: read timeout")

// Source wraps a pcap handle, either attached to a live interface or
// reading back a capture file.
type Source struct {
	handle *pcap.Handle
}

// OpenLive opens the named interface in promiscuous mode with an
// indefinite capture timeout and, if filter is non-empty, compiles and
// applies it as a BPF expression. Any failure here is a fatal startup
// fault.
func OpenLive(interfaceName, filter string) (*Source, error) {
	handle, err := pcap.OpenLive(interfaceName, snapshotLen, promiscuous, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("capture: open interface %q: %w", interfaceName, err)
	}
	src := &Source{handle: handle}
	if err := src.applyFilter(filter); err != nil {
		handle.Close()
		return nil, err
	}
	return src, nil
}

// OpenOffline reads frames back from a previously captured file, used by
// tests and offline analysis tooling rather than live monitoring.
func OpenOffline(path, filter string) (*Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open file %q: %w", path, err)
	}
	src := &Source{handle: handle}
	if err := src.applyFilter(filter); err != nil {
		handle.Close()
		return nil, err
	}
	return src, nil
}

func (s *Source) applyFilter(filter string) error {
	if filter == "" {
		return nil
	}
	if err := s.handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("capture: compile filter %q: %w", filter, err)
	}
	return nil
}

// NextFrame blocks until a frame is available, the handle is closed, or
// the capture timeout elapses. The returned byte slice is a fresh copy
// owned by the caller and stays valid after the next call.
func (s *Source) NextFrame() (data []byte, captureLength int, timestamp time.Time, err error) {
	data, ci, err := s.handle.ReadPacketData()
	if err != nil {
		if err == pcap.NextErrorTimeoutExpired {
			return nil, 0, time.Time{}, ErrTimeout
		}
		return nil, 0, time.Time{}, err
	}
	return data, ci.CaptureLength, ci.Timestamp, nil
}

// Close releases the underlying capture handle, unblocking any pending
// NextFrame call.
func (s *Source) Close() {
	s.handle.Close()
}
