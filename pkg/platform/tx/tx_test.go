package tx

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWithoutTx(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
	assert.Equal(t, context.Background(), WithTx(context.Background(), (*sql.Tx)(nil)))
}

func TestLockRunner(t *testing.T) {
	t.Run("returns fn error", func(t *testing.T) {
		r := NewLockRunner()
		want := errors.New("validation failed")
		assert.ErrorIs(t, r.RunInTx(context.Background(), func(context.Context) error { return want }), want)
	})

	t.Run("cancelled context never runs fn", func(t *testing.T) {
		r := NewLockRunner()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ran := false
		err := r.RunInTx(ctx, func(context.Context) error { ran = true; return nil })
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ran)
	})

	t.Run("serializes units of work", func(t *testing.T) {
		r := NewLockRunner()
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				require.NoError(t, r.RunInTx(context.Background(), func(context.Context) error {
					v := counter
					counter = v + 1
					return nil
				}))
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, counter)
	})
}
