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


// Package storage provides the storage abstraction layer for docflow.
//
// This package defines repository interfaces that decouple the pipeline from
// the storage implementation. The ingestion service, stage handlers and
// scheduler depend only on these interfaces.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return interfaces:
//
//	docs, err := badger.NewDocumentRepository(backend)  // returns storage.DocumentRepository
//
// This keeps callers from coupling to BadgerDB specifics and lets tests swap
// in fakes without modification.
//
// # Architecture
//
//   - KnowledgeBaseRepository: tenant collections that own documents
//   - DocumentRepository: documents and the (knowledge base, source) index
//   - ChunkRepository: embedded chunks per document
//   - StagingStore: short-lived raw bytes between ingestion and extraction
//   - FeedRepository, ExperienceRepository: recurring work and its executions
//   - UserRepository: experience fan-out targets and external identities
//   - AttachmentRepository: uploaded blobs with an expiry
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stores.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
