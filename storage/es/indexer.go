package es

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"recon-engine/types"
)

type ESIndexer struct {
	client *elasticsearch.Client
	index  string
}

// GetClient 返回 ES 客户端（用于检索）
func (e *ESIndexer) GetClient() *elasticsearch.Client {
	return e.client
}

// NewESIndexer 初始化 ES 客户端并确保索引存在
func NewESIndexer(addresses []string, indexName string) (*ESIndexer, error) {
	cfg := elasticsearch.Config{
		Addresses: addresses,
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating the client: %s", err)
	}

	indexer := &ESIndexer{client: es, index: indexName}

	// 初始化索引 Mapping (定义字段类型)
	if err := indexer.initMapping(context.Background()); err != nil {
		return nil, err
	}

	return indexer, nil
}

func (e *ESIndexer) initMapping(ctx context.Context) error {
	// 1. 检查索引是否存在
	res, err := e.client.Indices.Exists([]string{e.index})
	if err != nil {
		return err
	}
	if res.StatusCode == 200 {
		return nil // 已存在，跳过
	}

	// 2. 定义 Mapping。合同都是英文，用默认 english 分词器
	mapping := `
	{
	  "settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	  },
	  "mappings": {
		"properties": {
		  "doc_id":    { "type": "keyword" },
		  "clause_id": { "type": "keyword" },
		  "tenant_id": { "type": "keyword" },
		  "content": {
			"type": "text",
			"analyzer": "english"
		  },
		  "clause_type": { "type": "keyword" },
		  "confidence":  { "type": "double" }
		}
	  }
	}`

	log.Printf(">>> [ES] Creating index %s ...", e.index)
	res, err = e.client.Indices.Create(
		e.index,
		e.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("create index error: %v", err)
	}
	if res.IsError() {
		return fmt.Errorf("create index response error: %s", res.String())
	}
	return nil
}

// Store 批量存储条款，clause_id 作 _id 保证重复摄取不翻倍
func (e *ESIndexer) Store(ctx context.Context, doc *types.Document, clauses []*types.ClauseBoundary) error {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         e.index,
		Client:        e.client,
		FlushInterval: 1, // 开发环境立即刷新
	})
	if err != nil {
		return err
	}

	for _, clause := range clauses {
		docModel := map[string]interface{}{
			"doc_id":      doc.ID,
			"clause_id":   clause.ID,
			"tenant_id":   doc.TenantID,
			"content":     clause.Content,
			"clause_type": clause.ClauseType,
			"confidence":  clause.Confidence,
		}

		data, _ := json.Marshal(docModel)

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: clause.ID,
			Body:       strings.NewReader(string(data)),
		})
		if err != nil {
			return err
		}
	}

	if err := bi.Close(ctx); err != nil {
		return err
	}
	return nil
}

func (e *ESIndexer) DeleteByDocID(ctx context.Context, docID string) error {
	// 构造查询语句：{"query": {"term": {"doc_id": "xxx"}}}
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"doc_id": docID,
			},
		},
	}

	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("error encoding query: %s", err)
	}

	res, err := e.client.DeleteByQuery(
		[]string{e.index},
		strings.NewReader(buf.String()),
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithRefresh(true), // 强制刷新，确保立即生效（开发环境用，生产环境可去掉）
	)

	if err != nil {
		return fmt.Errorf("ES delete request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ES delete response error: %s", res.String())
	}

	log.Printf(">>> [ES] 已回滚/删除 DocID=%s 的相关数据", docID)
	return nil
}
