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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidKnowledgeBase indicates a KnowledgeBase failed validation.
	ErrInvalidKnowledgeBase = errors.New("invalid knowledge base")

	// ErrInvalidFeed indicates a Feed failed validation.
	ErrInvalidFeed = errors.New("invalid feed")

	// ErrInvalidExperience indicates an Experience failed validation.
	ErrInvalidExperience = errors.New("invalid experience")

	// ErrEmptyKnowledgeBaseID indicates the owning knowledge base is not set.
	ErrEmptyKnowledgeBaseID = errors.New("knowledge base id cannot be empty")

	// ErrInvalidStatus indicates an unknown ProcessingStatus value.
	ErrInvalidStatus = errors.New("invalid processing status")

	// ErrEmptyPluginName indicates a feed has no plugin to run.
	ErrEmptyPluginName = errors.New("plugin name cannot be empty")

	// ErrEmptyName indicates a required name is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrTruncatedData indicates encoded data ended unexpectedly.
	ErrTruncatedData = errors.New("truncated data")
)
