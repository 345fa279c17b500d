package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	// Given: errors from each code range
	cases := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityFatal},
		{ErrCodeUnknownIndexer, CategoryConfig, SeverityFatal},
		{ErrCodeStorageQuery, CategoryStorage, SeverityError},
		{ErrCodeSubmission, CategoryQueue, SeverityError},
		{ErrCodeFilterFailed, CategoryFilter, SeverityError},
		{ErrCodeInternal, CategoryInternal, SeverityError},
	}

	for _, tc := range cases {
		err := New(tc.code, "boom", nil)
		assert.Equal(t, tc.category, err.Category, tc.code)
		assert.Equal(t, tc.severity, err.Severity, tc.code)
	}
}

func TestError_FormatIncludesCode(t *testing.T) {
	err := New(ErrCodeUnknownIndexer, "no indexer named ctags2", nil)
	assert.Equal(t, "[ERR_103_UNKNOWN_INDEXER] no indexer named ctags2", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeQueueConnect, cause)
	require.NotNil(t, err)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, cause, err.Unwrap())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeQueueConnect, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := New(ErrCodeSubmission, "backend rejected job", nil)
	target := New(ErrCodeSubmission, "different message", nil)

	assert.True(t, stderrors.Is(err, target))
	assert.False(t, stderrors.Is(err, New(ErrCodeFilterFailed, "x", nil)))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ConfigError("bad config", nil)))
	assert.False(t, IsFatal(StorageError("query failed", nil)))
	assert.False(t, IsFatal(fmt.Errorf("plain error")))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeToolUnresolvable, "tool not registered", nil).
		WithDetail("indexer", "mimetype").
		WithDetail("tool", "file")

	assert.Equal(t, "mimetype", err.Details["indexer"])
	assert.Equal(t, "file", err.Details["tool"])
}
