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


// Package ingestion is the document-facing entry point of the pipeline.
//
// Each content shape has its own operation:
//
//   - IngestDocument stages raw file bytes and enqueues text extraction
//   - IngestText and IngestThread store text and enqueue embedding
//   - IngestEmail chunks and embeds synchronously
//
// The asynchronous operations return as soon as the first job is enqueued,
// so their latency does not depend on payload size. Re-ingesting content the
// knowledge base already holds is a no-op reported with Result.Skipped:
//
//	svc, err := ingestion.NewService(stores.KnowledgeBases, docs, stores.Staging, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := svc.IngestDocument(ctx, &ingestion.DocumentRequest{
//	    KnowledgeBaseID: kb.ID,
//	    SourceID:        "drive:1Zx9",
//	    Filename:        "handbook.pdf",
//	    Data:            data,
//	})
//	if res.Skipped {
//	    // unchanged since the last sync
//	}
//
// Failures after the document row exists are also recorded on the document
// as ERROR with a core.FailureKind, so later syncs know whether retrying can
// help.
package ingestion
