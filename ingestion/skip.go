package ingestion

import "github.com/poiesic/docflow/core"

// checkSkip decides whether ingesting content with the given hashes over the
// existing document would repeat work already done or in flight.
//
//   - force always reprocesses
//   - an ERROR document is skipped only when its hash matches and the
//     recorded failure is deterministic
//   - an abandoned document, one left in flight with no job that can still
//     move it, is reprocessed
//   - a matching source hash skips regardless of status
//   - a matching content hash skips when the document is PROCESSED or still
//     moving through the pipeline
func checkSkip(existing *core.Document, contentHash, sourceHash string, force, abandoned bool) bool {
	if force || existing == nil {
		return false
	}
	if abandoned && !existing.Status.IsTerminal() {
		return false
	}

	sourceMatch := sourceHash != "" && existing.SourceHash == sourceHash
	contentMatch := contentHash != "" && existing.ContentHash == contentHash

	if existing.Status == core.StatusError {
		return (sourceMatch || contentMatch) && existing.RecordedFailure() == core.FailureDeterministic
	}
	if sourceMatch {
		return true
	}
	if contentMatch {
		return existing.Status == core.StatusProcessed || !existing.Status.IsTerminal()
	}
	return false
}
