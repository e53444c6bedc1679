package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCodec_RoundTrip(t *testing.T) {
	payload := NewPayload().
		Set("document_id", "doc-1").
		Set("params", NewPayload().Set("limit", 10).Set("ratio", 0.75).Set("tags", []any{"a", nil, true})).
		Set("empty", NewPayload())

	job := NewJob("ocr", payload, WithMaxAttempts(5), WithVisibilityTimeout(10*time.Minute))
	job.Attempts = 2
	job.DeliveryID = NewDeliveryID()
	job.EnqueuedAt = time.Now().UTC().Truncate(time.Microsecond)

	data, err := MarshalJob(job)
	require.NoError(t, err)

	decoded, err := UnmarshalJob(data)
	require.NoError(t, err)

	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.QueueName, decoded.QueueName)
	assert.Equal(t, job.Attempts, decoded.Attempts)
	assert.Equal(t, job.MaxAttempts, decoded.MaxAttempts)
	assert.Equal(t, job.VisibilityTimeout, decoded.VisibilityTimeout)
	assert.True(t, job.EnqueuedAt.Equal(decoded.EnqueuedAt))
	assert.Equal(t, job.DeliveryID, decoded.DeliveryID)
	assert.True(t, job.Payload.Equal(decoded.Payload))
}

func TestUnmarshalJob_Errors(t *testing.T) {
	_, err := UnmarshalJob(nil)
	assert.Error(t, err)

	job := NewJob("embed", nil)
	data, err := MarshalJob(job)
	require.NoError(t, err)

	_, err = UnmarshalJob(data[:len(data)-3])
	assert.Error(t, err)

	bad := append([]byte{}, data...)
	bad[0] = 0x7e
	_, err = UnmarshalJob(bad)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestPrepare(t *testing.T) {
	now := time.Now()
	assert.ErrorIs(t, Prepare(nil, now), ErrInvalidJob)
	assert.ErrorIs(t, Prepare(&Job{}, now), ErrInvalidJob)

	job := &Job{QueueName: "q"}
	require.NoError(t, Prepare(job, now))
	assert.NotEmpty(t, job.ID)
	assert.NotNil(t, job.Payload)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, DefaultVisibilityTimeout, job.VisibilityTimeout)
	assert.False(t, job.EnqueuedAt.IsZero())
}
