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


// Package worker consumes pipeline jobs and runs the stage handlers.
//
// A Handler processes one job and returns a Result tagged Success or
// Cancelled, or an error. Every document stage first checks that the owning
// knowledge base still exists and cancels cleanly when it does not.
//
// Worker pulls from its queues and runs handlers on an ants pool:
//
//	w, err := worker.New(backend,
//	    worker.WithHandler(workload.KindOCR, worker.NewOCRHandler(deps, extractor)),
//	    worker.WithHandler(workload.KindEmbed, worker.NewEmbedHandler(deps)),
//	    worker.WithConcurrency(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Release()
//	err = w.Run(ctx)
//
// Jobs are acknowledged after Success or Cancelled and after payload
// validation errors, which no retry can fix. Any other failure leaves the job
// leased so the queue redelivers it when the visibility timeout expires.
package worker
