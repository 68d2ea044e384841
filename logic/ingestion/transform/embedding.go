package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/ollama"
)

// NewEmbedder 创建 Ollama Embedder
// baseURL/model 由调用方显式传入，不在这里读环境变量
func NewEmbedder(ctx context.Context, baseURL, model string) (*ollama.Embedder, error) {
	embedder, err := ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
		BaseURL: baseURL,
		Model:   model,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("NewEmbedder of ollama error: %w", err)
	}
	return embedder, nil
}
