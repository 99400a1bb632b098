// Package mailbox provides the sources the MART importer reads messages from.
package mailbox

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"report-scheduler/internal/mart"
)

// MemoryMailbox keeps messages in process until they are acknowledged.
type MemoryMailbox struct {
	mu       sync.Mutex
	messages []mart.Message
}

func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{}
}

func (m *MemoryMailbox) Add(msgs ...mart.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

func (m *MemoryMailbox) Download(_ context.Context, limit int) ([]mart.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.messages)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryMailbox) Ack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = slices.Delete(m.messages, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("ack %s: unknown message", id)
}

func (m *MemoryMailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
