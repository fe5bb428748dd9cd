package llm

import "context"

// DryRunPlaceholder is returned as the downstream reply when no API key is
// configured.
const DryRunPlaceholder = "[Sentinel dry-run] This is a placeholder response. Set OPENAI_API_KEY to get real LLM responses."

// DryRunClient satisfies ChatCompleter without any network access. Chat
// completions return the canonical placeholder; embeddings return nil so
// callers fall back to the deterministic local embedder.
type DryRunClient struct{}

var _ ChatCompleter = (*DryRunClient)(nil)

func (DryRunClient) Complete(ctx context.Context, messages []ChatMessage, temperature float64, maxTokens int) (string, error) {
	return DryRunPlaceholder, nil
}

func (DryRunClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}
