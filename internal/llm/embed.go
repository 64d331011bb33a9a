package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"swvanews/internal/logger"
)

// DefaultGeminiEmbedModel is used when the fallback backend has no explicit
// model configured.
const DefaultGeminiEmbedModel = "text-embedding-004"

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embedder produces dense vectors for article text. The primary backend is
// the OpenAI-compatible endpoint; when it fails and a Gemini key is
// configured, embedding falls back to the Gemini API.
type Embedder struct {
	client      *Client
	model       string
	geminiKey   string
	geminiModel string
}

// NewEmbedder wires the primary backend. geminiKey may be empty, which
// disables the fallback.
func NewEmbedder(client *Client, model, geminiKey, geminiModel string) *Embedder {
	if geminiModel == "" {
		geminiModel = DefaultGeminiEmbedModel
	}
	return &Embedder{client: client, model: model, geminiKey: geminiKey, geminiModel: geminiModel}
}

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embedOpenAI(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	if e.geminiKey == "" {
		return nil, err
	}

	logger.Warn("Primary embeddings backend failed, falling back to Gemini", "error", err.Error())
	return e.embedGemini(ctx, texts)
}

func (e *Embedder) embedOpenAI(ctx context.Context, texts []string) ([][]float32, error) {
	var parsed embeddingsResponse
	err := e.client.post(ctx, "/v1/embeddings", embeddingsRequest{Model: e.model, Input: texts}, &parsed)
	if err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings backend returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings backend returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (e *Embedder) embedGemini(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(e.geminiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.EmbeddingModel(e.geminiModel)
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		res, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("gemini embedding failed: %w", err)
		}
		vectors = append(vectors, res.Embedding.Values)
	}
	return vectors, nil
}
