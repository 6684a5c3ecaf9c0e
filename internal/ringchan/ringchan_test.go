package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_DropsOldest(t *testing.T) {
	rc := New[int](3)

	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}

	require.Equal(t, 3, rc.Len())
	assert.Equal(t, 7, <-rc.C())
	assert.Equal(t, 8, <-rc.C())
	assert.Equal(t, 9, <-rc.C())
	assert.Equal(t, int64(10), rc.Written())
	assert.Equal(t, int64(7), rc.Overwritten())
}

func TestRingChannel_ForceSendReportsDrop(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.ForceSend("a"))
	assert.True(t, rc.ForceSend("b"), "second send into a full buffer MUST drop")

	rc.Close()
	v, ok := <-rc.C()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = <-rc.C()
	assert.False(t, ok)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
