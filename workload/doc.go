// Package workload maps logical workload kinds to queues and retry policies.
//
// Every producer enqueues through EnqueueJob, which stamps the routed queue
// name, attempt limit, visibility timeout and action onto a new job:
//
//	job, err := workload.EnqueueJob(ctx, backend, workload.KindEmbed,
//		workload.EmbedPayload{DocumentID: id, KnowledgeBaseID: kbID}.Payload())
//
// Payloads are open key/value maps validated per kind against a JSON schema.
// Handlers call the Parse functions (ParseOCR, ParseEmbed, ...) at the top of
// their work to obtain a typed view and a descriptive ValidationError when a
// required field is absent.
package workload
