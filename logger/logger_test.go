package logger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferLoggerCaptures(t *testing.T) {
	b := NewBufferLogger(0)
	b.Debug("discovery started", map[string]any{"timeout": "5s"})
	b.Error("payment failed", map[string]any{"paymentId": "p1"})

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "debug", entries[0].Level)
	assert.Equal(t, "discovery started", entries[0].Message)
	assert.Equal(t, "error", entries[1].Level)
	assert.Equal(t, "p1", entries[1].Data["paymentId"])
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestBufferLoggerBounded(t *testing.T) {
	b := NewBufferLogger(10)
	for i := 0; i < 25; i++ {
		b.Info(fmt.Sprintf("event %d", i), nil)
	}

	entries := b.Entries()
	require.Len(t, entries, 10)
	assert.Equal(t, "event 15", entries[0].Message)
	assert.Equal(t, "event 24", entries[9].Message)
}

func TestEntriesReturnsCopy(t *testing.T) {
	b := NewBufferLogger(4)
	b.Info("one", nil)

	first := b.Entries()
	b.Info("two", nil)
	assert.Len(t, first, 1)
	assert.Len(t, b.Entries(), 2)
}
