package ai

// DocumentProfile is the result of semantic profiling.
type DocumentProfile struct {
	// Summary is a short abstract of the document, at most a few sentences.
	Summary string

	// Topics are lowercase subject labels ordered by relevance.
	Topics []string

	// Language is the ISO 639-1 code of the document's main language, or ""
	// when the model could not tell.
	Language string
}
