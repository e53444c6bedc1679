// Package openai implements the ai collaborators on OpenAI-compatible APIs.
//
// The langchaingo client talks to OpenAI itself or to any server exposing the
// same routes (Ollama, LocalAI, vLLM). Embeddings use the /embeddings route
// and profiling uses chat completions in JSON mode.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithProfilerModel("qwen2.5:3b"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "sample text")
//	profile, err := provider.Profiler().ProfileDocument(ctx, "", body)
package openai
