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


package storage

import "errors"

// Repositories return these sentinels, possibly wrapped; match with errors.Is.
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStorageClosed is returned by every call after Close.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery reports missing or contradictory lookup arguments.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed wraps a record that could not be decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrStagingExpired means some parts of a staged file outlived their TTL
	// and the file can no longer be reassembled.
	ErrStagingExpired = errors.New("staged file expired")
)
