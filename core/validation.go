package core

import "fmt"

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - KnowledgeBaseID must not be empty
//   - Status must be a known ProcessingStatus
//
// NOT validated (populated by pipeline stages):
//   - Content (empty until extraction for file documents)
//   - counts and Profile
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.KnowledgeBaseID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyKnowledgeBaseID)
	}
	if err := ValidateStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// ValidateStatus validates that a ProcessingStatus has a known value.
func ValidateStatus(status ProcessingStatus) error {
	switch status {
	case StatusPending, StatusOCR, StatusEmbedding, StatusProcessed, StatusError:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// ValidateKnowledgeBase validates a KnowledgeBase.
func ValidateKnowledgeBase(kb *KnowledgeBase) error {
	if kb == nil {
		return fmt.Errorf("%w: knowledge base is nil", ErrInvalidKnowledgeBase)
	}
	if kb.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidKnowledgeBase, ErrEmptyName)
	}
	return nil
}

// ValidateFeed validates a Feed.
func ValidateFeed(feed *Feed) error {
	if feed == nil {
		return fmt.Errorf("%w: feed is nil", ErrInvalidFeed)
	}
	if feed.PluginName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFeed, ErrEmptyPluginName)
	}
	if feed.KnowledgeBaseID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFeed, ErrEmptyKnowledgeBaseID)
	}
	if err := feed.Trigger.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFeed, err)
	}
	return nil
}

// ValidateExperience validates an Experience.
func ValidateExperience(exp *Experience) error {
	if exp == nil {
		return fmt.Errorf("%w: experience is nil", ErrInvalidExperience)
	}
	if exp.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidExperience, ErrEmptyName)
	}
	if err := exp.Trigger.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExperience, err)
	}
	return nil
}
