// Package documents persists documents and their embedded chunks.
//
// Service is the collaborator the pipeline stages use to create document
// rows, look them up by source identity, and turn a document's text into
// embedded chunks:
//
//	svc, err := documents.NewService(stores.Documents, stores.Chunks, provider.Embedder())
//	doc, err = svc.ProcessAndUpdateChunks(ctx, doc)
//
// ProcessAndUpdateChunks replaces every chunk of the document, so calling it
// again after a redelivered job converges on the same result.
package documents
