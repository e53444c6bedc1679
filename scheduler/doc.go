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


// Package scheduler discovers recurring work and enqueues it.
//
// A Source reconciles stale executions and enqueues whatever is due. The
// Driver ticks every registered source on an interval; a failing source is
// recorded in the tick's Report and never stops the others.
//
//	driver, err := scheduler.NewDriver([]scheduler.Source{
//	    scheduler.NewFeedSource(stores.Feeds, backend),
//	    scheduler.NewExperienceSource(stores.Experiences, stores.Users, backend),
//	    scheduler.NewAttachmentCleanupSource(stores.Attachments, stores.Staging),
//	}, scheduler.WithInterval(30*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = driver.Run(ctx)
package scheduler
