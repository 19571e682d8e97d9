package common_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgermatch/ledgermatch/internal/common"
)

func TestUserError(t *testing.T) {
	err := common.NewUserError("cannot apply action", common.ErrStatusConflict)

	assert.Equal(t, "cannot apply action: status conflict", err.Error())
	// The underlying fault stays reachable for callers that branch on it.
	assert.ErrorIs(t, err, common.ErrStatusConflict)

	bare := common.NewUserError("database is locked", nil)
	assert.Equal(t, "database is locked", bare.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, common.IsRetryable(common.ErrLedgerUnavailable))
	assert.True(t, common.IsRetryable(fmt.Errorf("post: %w", common.ErrLedgerUnavailable)))
	assert.True(t, common.IsRetryable(&common.RetryableError{Err: errors.New("status 503"), Retryable: true}))
	assert.False(t, common.IsRetryable(&common.RetryableError{Err: errors.New("status 401"), Retryable: false}))
	assert.False(t, common.IsRetryable(errors.New("parse failure")))
}
