package jobctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationID_Roundtrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", CorrelationID(ctx))
}

func TestCorrelationID_GeneratedWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.NotEmpty(t, CorrelationID(ctx))
}

func TestCorrelationID_AbsentIsEmpty(t *testing.T) {
	assert.Equal(t, "", CorrelationID(context.Background()))
}

func TestJobID_Roundtrip(t *testing.T) {
	ctx := WithJobID(context.Background(), 42)
	id, ok := JobID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = JobID(context.Background())
	assert.False(t, ok)
}

func TestWorkerID_Roundtrip(t *testing.T) {
	ctx := WithWorkerID(context.Background(), "worker-01")
	assert.Equal(t, "worker-01", WorkerID(ctx))
	assert.Equal(t, "", WorkerID(context.Background()))
}
