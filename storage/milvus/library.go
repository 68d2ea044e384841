package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cloudwego/eino-ext/components/indexer/milvus"
	milvusretriever "github.com/cloudwego/eino-ext/components/retriever/milvus"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 条款库：已审过的标准条款模板，摄取时拿新条款来比对打分

// LibraryMatch 条款库命中结果
type LibraryMatch struct {
	TemplateID string
	ClauseType string
	RiskHint   string  // 模板自带的风险标记 green/amber/red
	Score      float64 // 归一化到 0-1 的相似度
}

// NewLibraryIndexer 条款库集合的 Indexer
// schema: id / clause_type / risk_hint / vector / content / metadata
func NewLibraryIndexer(ctx context.Context, cli client.Client, embedder embedding.Embedder, collectionName string) (indexer.Indexer, error) {
	vecs, err := embedder.EmbedStrings(ctx, []string{"test"})
	if err != nil {
		return nil, fmt.Errorf("Embedder 坏了: %v", err)
	}
	dim := len(vecs[0])

	fields := []*entity.Field{
		{
			Name:       "id",
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			AutoID:     false,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       "clause_type",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "50"},
		},
		{
			Name:       "risk_hint",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "10"},
		},
		{
			Name:       "vector",
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)},
		},
		{
			Name:       "content",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "65535"},
		},
		{
			Name:     "metadata",
			DataType: entity.FieldTypeJSON,
		},
	}

	converter := func(ctx context.Context, docs []*schema.Document, vectors [][]float64) ([]interface{}, error) {
		rows := make([]interface{}, len(docs))
		for i, doc := range docs {
			vec32 := make([]float32, len(vectors[i]))
			for j, v := range vectors[i] {
				vec32[j] = float32(v)
			}

			var clauseType, riskHint string
			if doc.MetaData != nil {
				if v, ok := doc.MetaData["clause_type"].(string); ok {
					clauseType = v
				}
				if v, ok := doc.MetaData["risk_hint"].(string); ok {
					riskHint = v
				}
			}
			if doc.MetaData == nil {
				doc.MetaData = make(map[string]interface{})
			}
			metaBytes, err := json.Marshal(doc.MetaData)
			if err != nil {
				metaBytes = []byte("{}")
			}

			rows[i] = map[string]interface{}{
				"id":          doc.ID,
				"clause_type": clauseType,
				"risk_hint":   riskHint,
				"vector":      vec32,
				"content":     doc.Content,
				"metadata":    metaBytes,
			}
		}
		return rows, nil
	}

	idx, err := milvus.NewIndexer(ctx, &milvus.IndexerConfig{
		Client:            cli,
		Collection:        collectionName,
		Embedding:         embedder,
		Fields:            fields,
		DocumentConverter: converter,
		MetricType:        milvus.L2,
	})
	if err != nil {
		return nil, fmt.Errorf("[NewLibraryIndexer] 建表失败: %v", err)
	}

	// 库不大，只建向量索引和类型索引
	_ = cli.ReleaseCollection(ctx, collectionName)
	if err := cli.DropIndex(ctx, collectionName, "vector"); err != nil {
		fmt.Printf(">>> [Milvus] DropIndex 提示: %v\n", err)
	}
	hnswIdx, _ := entity.NewIndexHNSW(entity.L2, 16, 200)
	if err := cli.CreateIndex(ctx, collectionName, "vector", hnswIdx, false); err != nil {
		return nil, fmt.Errorf("❌ 创建 HNSW 向量索引失败: %v", err)
	}
	if err := cli.CreateIndex(ctx, collectionName, "clause_type", entity.NewScalarIndex(), false); err != nil {
		return nil, fmt.Errorf("❌ 创建 clause_type 索引失败: %v", err)
	}
	if err := cli.LoadCollection(ctx, collectionName, false); err != nil {
		return nil, fmt.Errorf("Load Collection 失败: %v", err)
	}

	return idx, nil
}

// MatchLibrary 拿条款文本去条款库找最相近的模板
// 找不到返回 nil，不报错（空库是正常情况）
func MatchLibrary(ctx context.Context, cli client.Client, collection string, emb embedding.Embedder, content string) (*LibraryMatch, error) {
	customConverter := func(ctx context.Context, result client.SearchResult) ([]*schema.Document, error) {
		docs := make([]*schema.Document, result.IDs.Len())
		for i := 0; i < result.IDs.Len(); i++ {
			id, err := result.IDs.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to get id: %w", err)
			}
			doc := &schema.Document{ID: id, MetaData: make(map[string]any)}
			if result.Scores != nil && len(result.Scores) > i {
				doc = doc.WithScore(float64(result.Scores[i]))
			}
			for _, field := range result.Fields {
				switch field.Name() {
				case "content":
					if v, err := field.GetAsString(i); err == nil {
						doc.Content = v
					}
				case "clause_type", "risk_hint":
					if v, err := field.GetAsString(i); err == nil {
						doc.MetaData[field.Name()] = v
					}
				}
			}
			docs[i] = doc
		}
		return docs, nil
	}

	retr, err := milvusretriever.NewRetriever(ctx, &milvusretriever.RetrieverConfig{
		Client:            cli,
		Collection:        collection,
		VectorField:       "vector",
		OutputFields:      []string{"content", "clause_type", "risk_hint"},
		DocumentConverter: customConverter,
		MetricType:        entity.L2,
		TopK:              1,
		Embedding:         emb,
	})
	if err != nil {
		return nil, fmt.Errorf("init library retriever failed: %v", err)
	}

	docs, err := retr.Retrieve(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("library retrieve failed: %v", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	top := docs[0]
	match := &LibraryMatch{
		TemplateID: top.ID,
		Score:      l2ToSimilarity(top.Score()),
	}
	if v, ok := top.MetaData["clause_type"].(string); ok {
		match.ClauseType = v
	}
	if v, ok := top.MetaData["risk_hint"].(string); ok {
		match.RiskHint = v
	}
	return match, nil
}

// l2ToSimilarity L2 距离越小越近，压到 0-1 当相似度用
func l2ToSimilarity(dist float64) float64 {
	if dist < 0 {
		dist = 0
	}
	return 1 / (1 + math.Sqrt(dist))
}
