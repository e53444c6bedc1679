// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why a pipeline attempt failed.
type FailureKind int

const (
	// FailureNone means no failure is recorded.
	FailureNone FailureKind = iota
	// FailureDeterministic means the content itself cannot be processed.
	// Reprocessing the same bytes will fail the same way.
	FailureDeterministic
	// FailureTransient means infrastructure failed (staging, queueing, embedding backends).
	// The next sync must retry.
	FailureTransient
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureDeterministic:
		return "deterministic"
	case FailureTransient:
		return "transient"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// ProcessingError is an error raised by a pipeline failure site that carries its classification.
type ProcessingError struct {
	Kind  FailureKind
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Deterministic wraps err as a deterministic failure of stage.
func Deterministic(stage string, err error) error {
	return &ProcessingError{Kind: FailureDeterministic, Stage: stage, Err: err}
}

// Transient wraps err as a transient failure of stage.
func Transient(stage string, err error) error {
	return &ProcessingError{Kind: FailureTransient, Stage: stage, Err: err}
}

// ClassifyFailure returns the FailureKind carried by err.
// Unclassified errors are treated as transient so they are retried.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailureTransient
}

// transientMarkers are the message prefixes written by transient failure
// sites before FailureKind was stored.
var transientMarkers = []string{"failed to stage", "failed to enqueue", "failed to retrieve staged"}

// InferFailureKind classifies a stored error message that has no recorded
// FailureKind. Messages from staging or enqueue failures are transient;
// anything else is assumed to be a property of the content.
func InferFailureKind(message string) FailureKind {
	if message == "" {
		return FailureNone
	}
	lower := strings.ToLower(message)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return FailureTransient
		}
	}
	return FailureDeterministic
}

// RecordedFailure returns the document's failure kind, inferring it from
// ProcessingError for records written without one.
func (d *Document) RecordedFailure() FailureKind {
	if d.Status != StatusError {
		return FailureNone
	}
	if d.FailureKind != FailureNone {
		return d.FailureKind
	}
	return InferFailureKind(d.ProcessingError)
}
