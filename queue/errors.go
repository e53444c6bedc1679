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


package queue

import "errors"

var (
	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("queue backend is closed")

	// ErrInvalidJob indicates a job is nil or has no queue name.
	ErrInvalidJob = errors.New("invalid job")

	// ErrDuplicateJob indicates a job with the same ID is already queued.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrUnsupportedVersion indicates an encoded job has an unknown envelope version.
	ErrUnsupportedVersion = errors.New("unsupported job encoding version")

	// ErrInvalidPayload indicates payload JSON could not be decoded or encoded.
	ErrInvalidPayload = errors.New("invalid payload")
)
