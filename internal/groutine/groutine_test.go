package groutine

import (
	"context"
	"runtime/pprof"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoAttachesName(t *testing.T) {
	names := make(chan string, 1)
	labels := make(chan string, 1)

	Go(nil, "ibbq-worker", func(ctx context.Context) {
		names <- GetName(ctx)
		v, _ := pprof.Label(ctx, "goroutine_name")
		labels <- v
	})

	assert.Equal(t, "ibbq-worker", <-names)
	assert.Equal(t, "ibbq-worker", <-labels)
	assert.Empty(t, GetName(context.Background()))
}

func TestGroupWait(t *testing.T) {
	var g Group
	var done atomic.Int32

	for i := 0; i < 8; i++ {
		g.Go(context.Background(), "worker", func(context.Context) {
			done.Add(1)
		})
	}
	g.Wait()

	assert.Equal(t, int32(8), done.Load(), "Wait MUST return only after every goroutine finished")
}
