package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(Settings{Name: "test", FailureThreshold: 3, Cooldown: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(Settings{Name: "test", FailureThreshold: 2, Cooldown: time.Minute})
	boom := errors.New("boom")

	require.Error(t, b.Execute(func() error { return boom }))
	require.NoError(t, b.Execute(func() error { return nil }))
	require.Error(t, b.Execute(func() error { return boom }))
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := New(Settings{Name: "test", FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, Open, b.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := New(Settings{Name: "test", FailureThreshold: 3, Cooldown: 10 * time.Millisecond})
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(func() error { return boom }))
	}

	time.Sleep(20 * time.Millisecond)
	require.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, Open, b.State())

	assert.ErrorIs(t, b.Execute(func() error { return nil }), ErrOpen)
}
