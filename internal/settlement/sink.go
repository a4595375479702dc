package settlement

import (
	"context"
	"sync"
	"time"
)

// Advice is one settlement message ready for delivery.
type Advice struct {
	MessageID string    `json:"messageId"`
	TxHash    string    `json:"txHash"`
	Operation string    `json:"operation"`
	Initiator string    `json:"initiator,omitempty"`
	Document  string    `json:"document"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink delivers advices to downstream settlement systems.
type Sink interface {
	Publish(ctx context.Context, advice Advice) error
	Close() error
}

// MemorySink keeps advices in memory. Useful for development and tests.
type MemorySink struct {
	mu      sync.Mutex
	advices []Advice
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Publish implements Sink.
func (s *MemorySink) Publish(_ context.Context, advice Advice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advices = append(s.advices, advice)
	return nil
}

// Advices returns a copy of everything published so far.
func (s *MemorySink) Advices() []Advice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Advice, len(s.advices))
	copy(out, s.advices)
	return out
}

// Close implements Sink.
func (s *MemorySink) Close() error { return nil }
