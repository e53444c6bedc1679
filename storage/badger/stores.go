package badger

import (
	"errors"
	"time"

	"github.com/poiesic/docflow/storage"
)

// Stores bundles every repository backed by a single Backend.
type Stores struct {
	Backend        *Backend
	KnowledgeBases storage.KnowledgeBaseRepository
	Documents      storage.DocumentRepository
	Chunks         storage.ChunkRepository
	Staging        storage.StagingStore
	Feeds          storage.FeedRepository
	Experiences    storage.ExperienceRepository
	Users          storage.UserRepository
	Attachments    storage.AttachmentRepository
}

// NewStores creates every repository over backend.
func NewStores(backend *Backend, stagingTTL time.Duration) *Stores {
	return &Stores{
		Backend:        backend,
		KnowledgeBases: NewKnowledgeBaseRepository(backend),
		Documents:      NewDocumentRepository(backend),
		Chunks:         NewChunkRepository(backend),
		Staging:        NewStagingStore(backend, stagingTTL),
		Feeds:          NewFeedRepository(backend),
		Experiences:    NewExperienceRepository(backend),
		Users:          NewUserRepository(backend),
		Attachments:    NewAttachmentRepository(backend),
	}
}

// Close closes the underlying backend.
func (s *Stores) Close() error {
	if s.Backend == nil {
		return errors.New("stores have no backend")
	}
	return s.Backend.Close()
}
