package queue

import (
	"fmt"

	"github.com/poiesic/docflow/core"
)

const jobCodecVersion = 1

// MarshalJob encodes a job as a MUS envelope. Header fields are written in a
// fixed order; the payload is embedded as JSON.
func MarshalJob(job *Job) ([]byte, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	payload, err := job.Payload.MarshalJSON()
	if err != nil {
		return nil, err
	}
	enc := core.NewEncoder(64 + len(payload))
	enc.Int(jobCodecVersion)
	enc.String(job.ID)
	enc.String(job.QueueName)
	enc.Int(job.Attempts)
	enc.Int(job.MaxAttempts)
	enc.Duration(job.VisibilityTimeout)
	enc.Time(job.EnqueuedAt)
	enc.String(job.DeliveryID)
	enc.String(string(payload))
	return enc.Bytes(), nil
}

// UnmarshalJob decodes a job written by MarshalJob.
func UnmarshalJob(data []byte) (*Job, error) {
	dec := core.NewDecoder(data)
	version := dec.Int()
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if version != jobCodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	job := &Job{
		ID:                dec.String(),
		QueueName:         dec.String(),
		Attempts:          dec.Int(),
		MaxAttempts:       dec.Int(),
		VisibilityTimeout: dec.Duration(),
		EnqueuedAt:        dec.Time(),
		DeliveryID:        dec.String(),
	}
	raw := dec.String()
	if err := dec.Err(); err != nil {
		return nil, err
	}
	payload := NewPayload()
	if err := payload.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, err
	}
	job.Payload = payload
	return job, nil
}
