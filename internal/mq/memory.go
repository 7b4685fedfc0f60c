package mq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
)

// MemoryBackend is an in-process broker. Messages published before a
// subscriber attaches are buffered per channel.
type MemoryBackend struct {
	mu       sync.Mutex
	channels map[string]chan Message
	buffer   int
	seq      int
	closed   bool
}

// NewMemoryBackend creates a broker whose channels hold up to buffer messages.
func NewMemoryBackend(buffer int) *MemoryBackend {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBackend{
		channels: make(map[string]chan Message),
		buffer:   buffer,
	}
}

func (b *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", errors.New("memory backend closed")
	}
	b.seq++
	id := strconv.Itoa(b.seq)
	ch := b.channelLocked(channel)
	b.mu.Unlock()

	msg := Message{ID: id, Data: append([]byte(nil), data...), Attributes: attrs}
	select {
	case ch <- msg:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe delivers messages until ctx is done. Messages whose handler fails
// are requeued at the back of the channel. A full channel never blocks the
// subscriber: the requeue is handed to a goroutine instead.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}

	b.mu.Lock()
	ch := b.channelLocked(channel)
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				b.requeue(ctx, ch, msg)
			}
		}
	}
}

// Close stops accepting new messages.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *MemoryBackend) requeue(ctx context.Context, ch chan Message, msg Message) {
	select {
	case ch <- msg:
	default:
		go func() {
			select {
			case ch <- msg:
			case <-ctx.Done():
			}
		}()
	}
}

func (b *MemoryBackend) channelLocked(name string) chan Message {
	ch, ok := b.channels[name]
	if !ok {
		ch = make(chan Message, b.buffer)
		b.channels[name] = ch
	}
	return ch
}
