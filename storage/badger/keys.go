package badger

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Key prefixes for different data types
const (
	knowledgeBasePrefix   = "kb"
	documentPrefix        = "doc"
	documentSourcePrefix  = "docsrc"
	documentKBPrefix      = "dockb"
	chunkPrefix           = "chunk"
	feedPrefix            = "feed"
	feedNextRunPrefix     = "feednext"
	feedExecutionPrefix   = "feedexec"
	feedExecByFeedPrefix  = "feedexecf"
	experiencePrefix      = "exp"
	experienceNextPrefix  = "expnext"
	experienceRunPrefix   = "exprun"
	experienceRunByExpPfx = "exprune"
	userPrefix            = "user"
	userEmailPrefix       = "usermail"
	identityPrefix        = "ident"
	attachmentPrefix      = "att"
	attachmentExpiryPfx   = "attexp"
	stagingPrefix         = "stg"
	jobPrefix             = "qjob"
	jobIndexPrefix        = "qidx"
	deadLetterPrefix      = "qdead"
	jobSequence           = "qseq"
)

// prefixKey returns "prefix:" for use as an iteration prefix.
func prefixKey(prefix string, parts ...string) []byte {
	key := prefix + ":"
	for _, p := range parts {
		key += p + ":"
	}
	return []byte(key)
}

func makeKnowledgeBaseKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", knowledgeBasePrefix, id))
}

func makeDocumentKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", documentPrefix, id))
}

// makeDocumentSourceKey generates the (knowledge base, source) lookup key.
// Format: prefix:kbID:sourceID
func makeDocumentSourceKey(kbID, sourceID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", documentSourcePrefix, kbID, sourceID))
}

// makeDocumentKBKey generates the per knowledge base listing key.
// Format: prefix:kbID:docID
func makeDocumentKBKey(kbID, docID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", documentKBPrefix, kbID, docID))
}

// makeChunkKey generates a chunk key ordered by position within a document.
// Format: prefix:docID:position
func makeChunkKey(docID string, position int) []byte {
	prefix := prefixKey(chunkPrefix, docID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(position))
	return buf
}

// makeTimeIndexKey generates a composite key ordered by timestamp.
// Format: prefix:timestamp:id
func makeTimeIndexKey(prefix string, ts time.Time, id string) []byte {
	prefixBytes := []byte(prefix + ":")
	buf := make([]byte, len(prefixBytes)+8+len(id))
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(ts.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// parseTimeIndexKey extracts the timestamp and id from a time index key.
func parseTimeIndexKey(prefix string, key []byte) (time.Time, string) {
	offset := len(prefix) + 1
	if len(key) < offset+8 {
		return time.Time{}, ""
	}
	micros := int64(binary.BigEndian.Uint64(key[offset : offset+8]))
	return time.UnixMicro(micros).UTC(), string(key[offset+8:])
}

func makeFeedKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", feedPrefix, id))
}

func makeFeedExecutionKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", feedExecutionPrefix, id))
}

// makeFeedExecByFeedKey indexes executions by feed in creation order.
// Format: prefix:feedID:timestamp:execID
func makeFeedExecByFeedKey(feedID string, created time.Time, execID string) []byte {
	return makeTimeIndexKey(feedExecByFeedPrefix+":"+feedID, created, execID)
}

func makeExperienceKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", experiencePrefix, id))
}

func makeExperienceRunKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", experienceRunPrefix, id))
}

// makeExperienceRunByExpKey indexes runs by experience in creation order.
// Format: prefix:expID:timestamp:runID
func makeExperienceRunByExpKey(expID string, created time.Time, runID string) []byte {
	return makeTimeIndexKey(experienceRunByExpPfx+":"+expID, created, runID)
}

func makeUserKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", userPrefix, id))
}

// makeUserEmailKey maps a normalized email to a user ID.
func makeUserEmailKey(email string) []byte {
	return []byte(fmt.Sprintf("%s:%s", userEmailPrefix, email))
}

// makeIdentityKey generates the identity key.
// Format: prefix:provider:subject
func makeIdentityKey(provider, subject string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", identityPrefix, provider, subject))
}

func makeAttachmentKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", attachmentPrefix, id))
}

// makeStagingMetaKey generates the staged file header key.
func makeStagingMetaKey(key string) []byte {
	return []byte(fmt.Sprintf("%s:%s:meta", stagingPrefix, key))
}

// makeStagingPartKey generates the key for one part of a staged file.
// Format: prefix:key:part
func makeStagingPartKey(key string, part int) []byte {
	prefix := prefixKey(stagingPrefix, key, "part")
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[offset:], uint32(part))
	return buf
}

// makeJobKey generates a job key ordered by enqueue sequence.
// Format: prefix:queue:seq
func makeJobKey(queueName string, seq uint64) []byte {
	prefix := prefixKey(jobPrefix, queueName)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeJobIndexKey maps a job ID to its sequence key.
func makeJobIndexKey(queueName, jobID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", jobIndexPrefix, queueName, jobID))
}

// makeDeadLetterKey generates a dead letter key ordered by original sequence.
func makeDeadLetterKey(queueName string, seq uint64) []byte {
	prefix := prefixKey(deadLetterPrefix, queueName)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}
