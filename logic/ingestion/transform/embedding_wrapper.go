package transform

import (
	"context"
	"fmt"
	"math"

	"github.com/cloudwego/eino/components/embedding"
)

// CleanEmbedder 包一层 NaN/Inf 守卫：条款文本偶尔会让 embedding 模型
// 吐出非法维度，Milvus 写入和 L2 距离计算都扛不住这种向量
type CleanEmbedder struct {
	inner embedding.Embedder
}

func NewCleanEmbedder(inner embedding.Embedder) *CleanEmbedder {
	return &CleanEmbedder{inner: inner}
}

// EmbedStrings 非法维度置 0 后原样返回，条款库匹配和条款检索共用这一层
func (e *CleanEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	vectors, err := e.inner.EmbedStrings(ctx, texts, opts...)
	if err != nil {
		return nil, err
	}

	cleaned := 0
	for _, vec := range vectors {
		for j, val := range vec {
			if math.IsNaN(val) || math.IsInf(val, 0) {
				vec[j] = 0.0
				cleaned++
			}
		}
	}
	if cleaned > 0 {
		fmt.Printf(">>> [Embedder] ⚠️ 条款向量含 NaN/Inf，已置零 %d 个维度\n", cleaned)
	}

	return vectors, nil
}
