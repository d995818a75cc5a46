package compliance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/adherence-engine/compliance"
)

func TestRetryPolicy_RetriesStorageErrorsOnce(t *testing.T) {
	p := compliance.RetryPolicy{MaxRetries: 1}
	calls := 0
	var retried []int

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return &compliance.StorageError{Op: "create", Err: errors.New("down")}
	}, func(attempt int, _ error) { retried = append(retried, attempt) })

	assert.ErrorIs(t, err, compliance.ErrStorage)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retried)
}

func TestRetryPolicy_SucceedsOnRetry(t *testing.T) {
	p := compliance.RetryPolicy{MaxRetries: 1}
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &compliance.StorageError{Op: "update", Err: errors.New("blip")}
		}
		return nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_ClientErrorsNotRetried(t *testing.T) {
	p := compliance.RetryPolicy{MaxRetries: 3}
	calls := 0

	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return compliance.ErrEmptyItemName
	}, nil)

	assert.ErrorIs(t, err, compliance.ErrEmptyItemName)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ZeroRetries(t *testing.T) {
	p := compliance.RetryPolicy{}
	calls := 0

	_ = p.Do(context.Background(), func(context.Context) error {
		calls++
		return &compliance.StorageError{Op: "filter", Err: errors.New("down")}
	}, nil)

	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_PerAttemptTimeout(t *testing.T) {
	p := compliance.RetryPolicy{Timeout: 10 * time.Millisecond}

	err := p.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
