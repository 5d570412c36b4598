package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("committing snapshot: %w", IO("write snapshot", "a.txt", fs.ErrPermission))

	assert.True(t, stderrors.Is(err, ErrIO))
	assert.False(t, stderrors.Is(err, ErrCorruptState))
	assert.True(t, stderrors.Is(err, fs.ErrPermission))
	assert.Equal(t, ErrorTypeIO, TypeOf(err))
	assert.Contains(t, err.Error(), "write snapshot a.txt")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"not initialized", NotInitialized("/tmp/x"), ExitNotInitialized},
		{"lock held", fmt.Errorf("open: %w", LockHeld(".gitnot/lock", nil)), ExitLockHeld},
		{"io", IO("hash", "a", fs.ErrNotExist), ExitIO},
		{"conflict", Conflict("v0.3"), ExitCorruptState},
		{"plain", stderrors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestConflictMessage(t *testing.T) {
	err := Conflict("v0.3")
	assert.Equal(t, "write changelog (version v0.3): an entry already exists for this version", err.Error())
	assert.True(t, stderrors.Is(err, ErrCorruptState))
}
