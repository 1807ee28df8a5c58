package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCauseChain(t *testing.T) {
	root := stderrors.New("connection reset")
	err := Wrap(root, ErrorTypeBulkCommit, "bulk ingest rejected")

	require.NotNil(t, err)
	assert.Equal(t, ErrorTypeBulkCommit, err.Type)
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "bulk_commit")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeQuery, "ignored"))
}

func TestWrapKeepsOriginalStack(t *testing.T) {
	inner := New(ErrorTypeQuery, "query failed")
	outer := Wrap(inner, ErrorTypeBulkCommit, "load aborted")

	require.NotEmpty(t, inner.Stack)
	assert.Equal(t, inner.Stack[0], outer.Stack[0])
}

func TestIsTypeSeesThroughWrapping(t *testing.T) {
	err := New(ErrorTypeCatalog, "table not found")
	wrapped := fmt.Errorf("loading campaign_insights: %w", err)

	assert.True(t, IsType(wrapped, ErrorTypeCatalog))
	assert.False(t, IsType(wrapped, ErrorTypeSchema))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeCatalog))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeSchema, TypeOf(New(ErrorTypeSchema, "no columns")))
	assert.Equal(t, ErrorTypeInternal, TypeOf(stderrors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeBulkCommit, "rolled back")))
	assert.True(t, IsRetryable(New(ErrorTypeConnection, "refused")))
	assert.True(t, IsRetryable(New(ErrorTypeTimeout, "deadline")))
	assert.False(t, IsRetryable(New(ErrorTypeValidation, "bad batch")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeEncoding, "unsupported cell").
		WithDetail("row", 17).
		WithDetail("column", "cost")

	assert.Equal(t, 17, err.Details["row"])
	assert.Equal(t, "cost", err.Details["column"])
}
