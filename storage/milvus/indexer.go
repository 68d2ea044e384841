package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/indexer/milvus"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// NewClient 建立 Milvus 连接，各 collection 复用同一个连接
func NewClient(ctx context.Context, milvusAddr string) (client.Client, error) {
	fmt.Printf(">>> [Milvus] 正在连接: %s ...\n", milvusAddr)
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cli, err := client.NewClient(connectCtx, client.Config{
		Address: milvusAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("连接milvus失败: %w", err)
	}
	fmt.Println(">>> [Milvus] 连接成功")
	return cli, nil
}

// NewClauseIndexer 条款向量集合的 Indexer（复用外部 Client）
// schema: id(条款ID 主键) / doc_id / tenant_id / clause_type / vector / content / metadata
func NewClauseIndexer(ctx context.Context, cli client.Client, embedder embedding.Embedder, collectionName string) (indexer.Indexer, error) {
	vecs, err := embedder.EmbedStrings(ctx, []string{"test"})
	if err != nil {
		return nil, fmt.Errorf("Embedder 坏了: %v", err)
	}
	dim := len(vecs[0])
	fmt.Printf(">>> [Milvus] %s 向量维度: %d\n", collectionName, dim)

	fields := []*entity.Field{
		{
			Name:       "id", // 主键，直接用条款 UUID
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			AutoID:     false,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       "doc_id",
			DataType:   entity.FieldTypeVarChar,
			AutoID:     false,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       "tenant_id",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       "clause_type",
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "50"},
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
			// 向量 float64 -> float32
			vec32 := make([]float32, len(vectors[i]))
			for j, v := range vectors[i] {
				vec32[j] = float32(v)
			}

			var docID, tenantID, clauseType string
			if doc.MetaData != nil {
				if v, ok := doc.MetaData["doc_id"].(string); ok {
					docID = v
				}
				if v, ok := doc.MetaData["tenant_id"].(string); ok {
					tenantID = v
				}
				if v, ok := doc.MetaData["clause_type"].(string); ok {
					clauseType = v
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
				"doc_id":      docID,
				"tenant_id":   tenantID,
				"clause_type": clauseType,
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
		return nil, fmt.Errorf("[NewIndexer] 建表失败: %v", err)
	}

	if err := ensureIndexes(ctx, cli, collectionName); err != nil {
		return nil, err
	}

	return idx, nil
}

// ensureIndexes 换掉默认向量索引，补条款过滤要用的标量索引
func ensureIndexes(ctx context.Context, cli client.Client, collectionName string) error {
	// 先 Release 才能操作索引
	_ = cli.ReleaseCollection(ctx, collectionName)

	if err := cli.DropIndex(ctx, collectionName, "vector"); err != nil {
		fmt.Printf(">>> [Milvus] DropIndex 提示: %v\n", err)
	}

	hnswIdx, _ := entity.NewIndexHNSW(entity.L2, 16, 200)
	if err := cli.CreateIndex(ctx, collectionName, "vector", hnswIdx, false); err != nil {
		return fmt.Errorf("❌ 创建 HNSW 向量索引失败: %v", err)
	}

	for _, field := range []string{"doc_id", "tenant_id", "clause_type"} {
		if err := cli.CreateIndex(ctx, collectionName, field, entity.NewScalarIndex(), false); err != nil {
			return fmt.Errorf("❌ 创建 %s 索引失败: %v", field, err)
		}
	}

	fmt.Printf(">>> [Milvus] 正在 Load Collection %s ...\n", collectionName)
	if err := cli.LoadCollection(ctx, collectionName, false); err != nil {
		return fmt.Errorf("Load Collection 失败: %v", err)
	}
	return nil
}
