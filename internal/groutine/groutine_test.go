package groutine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGo_NamesContext(t *testing.T) {
	got := make(chan string, 1)

	Go(t.Context(), "scan", func(ctx context.Context) {
		got <- GetName(ctx)
	})

	assert.Equal(t, "scan", <-got)
	assert.Empty(t, GetName(context.Background()))
}

func TestGroup_Wait(t *testing.T) {
	var g Group
	var n atomic.Int32

	for i := 0; i < 5; i++ {
		g.Go(t.Context(), "worker", func(ctx context.Context) {
			n.Add(1)
		})
	}
	g.Wait()

	assert.Equal(t, int32(5), n.Load())
}
