package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdown(t *testing.T) {
	t.Run("Success_StopsInOrder", func(t *testing.T) {
		var order []string
		stop := func(name string) shutdowner {
			return shutdowner{name: name, stop: func(ctx context.Context) error {
				order = append(order, name)
				return nil
			}}
		}

		errs := shutdown(context.Background(), []shutdowner{
			stop("api server"),
			stop("scheduler"),
			stop("async executor"),
		})

		assert.Empty(t, errs)
		assert.Equal(t, []string{"api server", "scheduler", "async executor"}, order)
	})

	t.Run("Error_ContinuesAfterFailure", func(t *testing.T) {
		executorStopped := false
		errs := shutdown(context.Background(), []shutdowner{
			{name: "scheduler", stop: func(ctx context.Context) error { return context.DeadlineExceeded }},
			{name: "async executor", stop: func(ctx context.Context) error {
				executorStopped = true
				return nil
			}},
		})

		assert.True(t, executorStopped)
		assert.Len(t, errs, 1)
		assert.True(t, errors.Is(errs[0], context.DeadlineExceeded))
		assert.EqualError(t, errs[0], "scheduler shutdown: context deadline exceeded")
	})
}
