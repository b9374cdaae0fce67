package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_CancelIsIdempotent(t *testing.T) {
	tok := New(context.Background())
	var reasons []string
	tok.OnCancel(func(reason string) { reasons = append(reasons, reason) })

	tok.Cancel("first")
	tok.Cancel("second")

	require.Len(t, reasons, 1)
	assert.Equal(t, "first", reasons[0])
	assert.True(t, tok.Cancelled())
	assert.Equal(t, "first", tok.Reason())
}

func TestToken_ContextDoneAfterCancel(t *testing.T) {
	tok := New(context.Background())
	tok.Cancel("shutdown")

	select {
	case <-tok.Done():
	default:
		t.Fatal("expected context to be done after Cancel")
	}
	assert.Error(t, tok.Context().Err())
}

func TestToken_OnCancelAfterTriggerRunsImmediately(t *testing.T) {
	tok := New(context.Background())
	tok.Cancel("already done")

	called := false
	tok.OnCancel(func(reason string) {
		called = true
		assert.Equal(t, "already done", reason)
	})
	assert.True(t, called)
}

func TestToken_NotCancelledInitially(t *testing.T) {
	tok := New(context.Background())
	assert.False(t, tok.Cancelled())
	assert.Empty(t, tok.Reason())
}
