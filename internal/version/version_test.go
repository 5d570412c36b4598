package version

import (
	"fmt"
	"testing"

	"gitnot/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"v0.0", Version{}, false},
		{"v1.2", Version{1, 2}, false},
		{"3.14", Version{3, 14}, false},
		{"v7", Version{7, 0}, false},
		{"vx.1", Version{}, true},
		{"v1.-1", Version{}, true},
		{"", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "v1.2", Version{1, 2}.String())
}

func TestOrdering(t *testing.T) {
	assert.True(t, Version{0, 9}.Less(Version{1, 0}))
	assert.True(t, Version{1, 2}.Less(Version{1, 10}))
	assert.Equal(t, 0, Version{2, 3}.Compare(Version{2, 3}))
	assert.False(t, Version{2, 0}.Less(Version{1, 99}))
}

func TestMinorCarry(t *testing.T) {
	t.Run("NeverCarry", func(t *testing.T) {
		p := MinorCarry{}
		assert.Equal(t, Version{0, 1}, p.Next(Baseline))
		assert.Equal(t, Version{0, 100}, p.Next(Version{0, 99}))
	})

	t.Run("CarryAtThreshold", func(t *testing.T) {
		p := MinorCarry{Threshold: 10}
		assert.Equal(t, Version{0, 9}, p.Next(Version{0, 8}))
		assert.Equal(t, Version{1, 0}, p.Next(Version{0, 9}))
		assert.Equal(t, Version{1, 1}, p.Next(Version{1, 0}))
	})

	t.Run("Monotonic", func(t *testing.T) {
		p := MinorCarry{Threshold: 3}
		v := Baseline
		for range 20 {
			next := p.Next(v)
			require.True(t, v.Less(next), "%s should precede %s", v, next)
			v = next
		}
	})
}

type memMarker struct {
	current Version
}

func (m *memMarker) Version() (Version, error) { return m.current, nil }

func (m *memMarker) SwapVersion(old, new Version) error {
	if m.current != old {
		return errors.CorruptState("swap version", fmt.Sprintf("marker is %s, expected %s", m.current, old))
	}
	m.current = new
	return nil
}

func TestController(t *testing.T) {
	marker := &memMarker{}
	c := NewController(marker, MinorCarry{}, nil)

	next, err := c.Next(Baseline)
	require.NoError(t, err)
	assert.Equal(t, Version{0, 1}, next)

	require.NoError(t, c.Commit(Baseline, next))
	cur, err := c.Current()
	require.NoError(t, err)
	assert.Equal(t, next, cur)

	t.Run("StaleCommitRejected", func(t *testing.T) {
		err := c.Commit(Baseline, Version{0, 1})
		assert.ErrorIs(t, err, errors.ErrCorruptState)
	})

	t.Run("NonIncreasingPolicyRejected", func(t *testing.T) {
		bad := NewController(marker, PolicyFunc(func(prev Version) Version { return prev }), nil)
		_, err := bad.Next(Version{0, 1})
		assert.ErrorIs(t, err, errors.ErrCorruptState)
	})

	t.Run("Rollback", func(t *testing.T) {
		require.NoError(t, c.Rollback(Version{0, 1}, Baseline))
		cur, err := c.Current()
		require.NoError(t, err)
		assert.Equal(t, Baseline, cur)
	})
}
