package ctxutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovekit/grove/internal/ctxutil"
)

func TestCanceled(t *testing.T) {
	t.Run("live context returns nil", func(t *testing.T) {
		require.NoError(t, ctxutil.Canceled(context.Background()))
	})

	t.Run("canceled context returns Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, ctxutil.Canceled(ctx), context.Canceled)
	})

	t.Run("expired deadline returns DeadlineExceeded", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		assert.ErrorIs(t, ctxutil.Canceled(ctx), context.DeadlineExceeded)
	})
}
