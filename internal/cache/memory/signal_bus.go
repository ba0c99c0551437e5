// Package memory provides an in-process domain.SignalBus for running the
// detector without Redis.
package memory

import (
	"context"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

const (
	defaultStreamMaxLen = 10000
	subscriberBuffer    = 256
)

type subscriber struct {
	pattern string
	ch      chan []byte
}

// SignalBus delivers published payloads to the subscribers of this process
// and keeps bounded streams in memory. Patterns use path.Match globbing, which
// covers the "*", "?" and "[...]" forms Redis accepts.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string]*stream
	maxLen  int
}

type stream struct {
	seq     uint64
	entries []domain.StreamMessage
}

var _ domain.SignalBus = (*SignalBus)(nil)

// NewSignalBus creates an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string]*stream),
		maxLen:  defaultStreamMaxLen,
	}
}

// Publish delivers payload to every matching subscriber. A subscriber whose
// buffer is full misses the message.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. It is closed
// when ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}

// StreamAppend appends payload to stream, dropping the oldest entries beyond
// the bus's maximum length.
func (b *SignalBus) StreamAppend(_ context.Context, name string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[name]
	if !ok {
		st = &stream{}
		b.streams[name] = st
	}
	st.seq++
	st.entries = append(st.entries, domain.StreamMessage{
		ID:      strconv.FormatUint(st.seq, 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if over := len(st.entries) - b.maxLen; over > 0 {
		st.entries = append(st.entries[:0:0], st.entries[over:]...)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("" or "0" from the start).
func (b *SignalBus) StreamRead(_ context.Context, name string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := parseID(lastID)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.streams[name]
	if !ok {
		return nil, nil
	}
	var out []domain.StreamMessage
	for _, e := range st.entries {
		id, _ := parseID(e.ID)
		if id <= after {
			continue
		}
		out = append(out, e)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// parseID reads the sequence part of a "<seq>-0" stream ID.
func parseID(id string) (uint64, error) {
	if id == "" || id == "0" || id == "0-0" {
		return 0, nil
	}
	seq, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidArgument
	}
	return n, nil
}
