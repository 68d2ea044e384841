package milvus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/retriever/milvus"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Filter 条款向量检索的标量过滤条件
type Filter struct {
	TenantID    string
	DocID       string
	ClauseTypes []string
}

// Retriever 执行向量检索（接收外部创建的 Client）
// query: 语义查询语句
// filters: 标量过滤，nil 表示不过滤
func Retriever(ctx context.Context, cli client.Client, collection string, query string, filters *Filter, emb embedding.Embedder, topK int) ([]*schema.Document, error) {

	// 自定义 DocumentConverter，把分数带出来
	customConverter := func(ctx context.Context, result client.SearchResult) ([]*schema.Document, error) {
		docs := make([]*schema.Document, result.IDs.Len())
		for i := 0; i < result.IDs.Len(); i++ {
			id, err := result.IDs.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to get id: %w", err)
			}

			doc := &schema.Document{
				ID:       id,
				MetaData: make(map[string]any),
			}
			// result.Scores 是 []float32，需要转为 float64
			if result.Scores != nil && len(result.Scores) > i {
				doc = doc.WithScore(float64(result.Scores[i]))
			}

			for _, field := range result.Fields {
				fieldName := field.Name()
				switch fieldName {
				case "content":
					if v, err := field.GetAsString(i); err == nil {
						doc.Content = v
					}
				case "doc_id", "tenant_id", "clause_type":
					if v, err := field.GetAsString(i); err == nil {
						doc.MetaData[fieldName] = v
					} else {
						log.Printf(">>> [Warning] 字段 %s 获取失败 (索引 %d): %v", fieldName, i, err)
					}
				default:
					continue
				}
			}
			docs[i] = doc
		}
		return docs, nil
	}

	retr, err := milvus.NewRetriever(ctx, &milvus.RetrieverConfig{
		Client:            cli,
		Collection:        collection,
		VectorField:       "vector",
		OutputFields:      []string{"content", "doc_id", "clause_type"},
		DocumentConverter: customConverter,
		MetricType:        entity.L2,
		TopK:              topK,
		Embedding:         emb,
	})
	if err != nil {
		return nil, fmt.Errorf("init retriever failed: %v", err)
	}

	// 确保 Collection 已加载到内存
	loadStart := time.Now()
	err = cli.LoadCollection(ctx, collection, false)
	if err != nil {
		log.Printf("⚠️ LoadCollection warning: %v", err)
		// 不中断，继续尝试查询
	} else {
		// 等待加载完成（最多 5 秒）
		loadDeadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(loadDeadline) {
			loadState, _ := cli.GetLoadState(ctx, collection, []string{})
			// 3 = LoadStateLoaded
			if loadState == 3 {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		log.Printf(">>> [Milvus] Collection 加载耗时: %v", time.Since(loadStart))
	}

	docs, err := retr.Retrieve(ctx, query, milvus.WithFilter(BuildExpr(filters)))
	if err != nil {
		return nil, fmt.Errorf("milvus retrieve failed: %v", err)
	}

	fmt.Printf(">>> [Milvus Retrieval] 找到 %d 个结果\n", len(docs))
	return docs, nil
}

// BuildExpr 构建标量过滤表达式
func BuildExpr(filters *Filter) string {
	if filters == nil {
		return ""
	}
	var exprs []string

	if filters.TenantID != "" {
		exprs = append(exprs, fmt.Sprintf("tenant_id == '%s'", filters.TenantID))
	}
	if filters.DocID != "" {
		exprs = append(exprs, fmt.Sprintf("doc_id == '%s'", filters.DocID))
	}
	if len(filters.ClauseTypes) > 0 {
		quoted := make([]string, 0, len(filters.ClauseTypes))
		for _, t := range filters.ClauseTypes {
			quoted = append(quoted, fmt.Sprintf("'%s'", t))
		}
		exprs = append(exprs, fmt.Sprintf("clause_type in [%s]", strings.Join(quoted, ", ")))
	}

	return strings.Join(exprs, " && ")
}
