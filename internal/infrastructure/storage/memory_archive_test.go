package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryArchive(t *testing.T) {
	m := NewMemoryArchive()
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		body := []byte(`{"id":"e-1"}`)
		require.NoError(t, m.Put(ctx, "executions/o-1/e-1.json", body, "application/json"))
		body[0] = 'X'

		stored, contentType, ok := m.Get("executions/o-1/e-1.json")
		require.True(t, ok)
		assert.Equal(t, `{"id":"e-1"}`, string(stored), "stores a copy")
		assert.Equal(t, "application/json", contentType)
		assert.Equal(t, 1, m.Len())

		exists, err := m.Exists(ctx, "executions/o-1/e-1.json")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("missing object", func(t *testing.T) {
		exists, err := m.Exists(ctx, "executions/o-2/e-2.json")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("download url", func(t *testing.T) {
		url, expiresAt, err := m.PresignDownload(ctx, "executions/o-1/e-1.json", time.Minute)
		require.NoError(t, err)
		assert.Contains(t, url, "memory://archive/executions/o-1/e-1.json?expires=")
		assert.True(t, expiresAt.After(time.Now()))
	})

	t.Run("empty key", func(t *testing.T) {
		assert.ErrorIs(t, m.Put(ctx, "", nil, ""), ErrEmptyKey)
		_, _, err := m.PresignDownload(ctx, "", time.Minute)
		assert.ErrorIs(t, err, ErrEmptyKey)
		_, err = m.Exists(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyKey)
	})
}
