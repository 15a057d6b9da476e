package cache

import (
	"context"
	"sync"

	"github.com/mediconsult/pkg/models"
)

// Memory is an in-process Cache. It backs tests and single-node deployments
// without Redis.
type Memory struct {
	mu   sync.RWMutex
	logs map[string][]*models.Message
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{logs: make(map[string][]*models.Message)}
}

func (c *Memory) Append(_ context.Context, conversationID string, msg *models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *msg
	c.logs[conversationID] = append(c.logs[conversationID], &copied)
	return nil
}

func (c *Memory) List(_ context.Context, conversationID string) ([]*models.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log := c.logs[conversationID]
	out := make([]*models.Message, len(log))
	copy(out, log)
	return out, nil
}

func (c *Memory) Delete(_ context.Context, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.logs, conversationID)
	return nil
}

func (c *Memory) Available() bool {
	return true
}
