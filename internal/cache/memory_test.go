package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediconsult/pkg/models"
)

func TestMemoryAppendAndList(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "conv-1", &models.Message{ID: "m1", Role: models.RoleUser, Content: "hello"}))
	require.NoError(t, c.Append(ctx, "conv-1", &models.Message{ID: "m2", Role: models.RoleAssistant, Content: "hi"}))
	require.NoError(t, c.Append(ctx, "conv-2", &models.Message{ID: "m3", Role: models.RoleUser, Content: "other"}))

	got, err := c.List(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)

	// Mutating the caller's message after Append must not change the cache.
	msg := &models.Message{ID: "m4", Content: "before"}
	require.NoError(t, c.Append(ctx, "conv-3", msg))
	msg.Content = "after"
	got, err = c.List(ctx, "conv-3")
	require.NoError(t, err)
	assert.Equal(t, "before", got[0].Content)
}

func TestMemoryDelete(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, "conv-1", &models.Message{ID: "m1"}))
	require.NoError(t, c.Delete(ctx, "conv-1"))

	got, err := c.List(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting an absent conversation is a no-op.
	assert.NoError(t, c.Delete(ctx, "missing"))
	assert.True(t, c.Available())
}
