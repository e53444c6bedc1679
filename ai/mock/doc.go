// Package mock provides test doubles for the ai interfaces.
//
// The mocks are deterministic: the same text always embeds to the same unit
// vector, and the default profile is derived from the text itself. Inject a
// function field to simulate failures:
//
//	provider := mock.NewMockProvider()
//	provider.GetMockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("service unavailable")
//	}
//
// All mocks are safe for concurrent use, but function fields must be set
// before the mock is shared.
package mock
