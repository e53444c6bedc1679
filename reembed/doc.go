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


// Package reembed re-runs the embed stage for every document of a knowledge
// base, typically after the embedding model changed.
//
// It does not embed anything itself. Each eligible document is moved back to
// EMBEDDING and an embed job is enqueued for it, so the normal worker pipeline
// rebuilds its chunks:
//
//	r, err := reembed.New(stores.Documents, backend,
//		reembed.WithBatchSize(50),
//		reembed.WithProgress(os.Stderr))
//	summary, err := r.Run(ctx, kbID)
package reembed
