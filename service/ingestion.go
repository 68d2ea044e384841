package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/semantic"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"

	"recon-engine/logic/ingestion/classify"
	"recon-engine/logic/ingestion/processors"
	"recon-engine/logic/reconcile"
	"recon-engine/storage/es"
	"recon-engine/storage/milvus"
	"recon-engine/storage/postgres"
	"recon-engine/types"
	"recon-engine/vars"
)

// 库匹配置信度 -> 库风险 RAG 的阈值
const (
	libraryGreenThreshold = 0.85
	libraryAmberThreshold = 0.6
)

type IngestionService struct {
	repo           *postgres.Repo
	chatModel      model.ToolCallingChatModel
	embedder       embedding.Embedder
	clauseIndexer  indexer.Indexer
	libraryIndexer indexer.Indexer
	esIndexer      *es.ESIndexer
	milvusClient   milvusclient.Client
	policy         reconcile.RetryPolicy
}

// 构造函数：依赖注入
func NewIngestionService(repo *postgres.Repo, chatModel model.ToolCallingChatModel, embedder embedding.Embedder, clauseIdx, libraryIdx indexer.Indexer, esIndexer *es.ESIndexer, milvusClient milvusclient.Client) *IngestionService {
	return &IngestionService{
		repo:           repo,
		chatModel:      chatModel,
		embedder:       embedder,
		clauseIndexer:  clauseIdx,
		libraryIndexer: libraryIdx,
		esIndexer:      esIndexer,
		milvusClient:   milvusClient,
		policy:         reconcile.DefaultRetryPolicy(),
	}
}

// UploadAndProcess 合同上传到待核对的完整摄取链路
// PDF 解析 -> 语义切分 -> 条款分类 -> 条款库匹配打分 -> PG/ES/Milvus 三写
func (s *IngestionService) UploadAndProcess(ctx context.Context, fileHeader *multipart.FileHeader, dealID, tenantID string) (string, error) {
	startTime := time.Now()
	srcFile, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer srcFile.Close()

	// 查重
	one, err := s.repo.GetDocumentByFileName(ctx, fileHeader.Filename)
	if err != nil {
		return "", err
	}
	if one != nil {
		fmt.Printf(">>> [Ingest] 跳过: 文件已存在 (%s)\n", fileHeader.Filename)
		return one.ID, nil
	}

	// PDF 解析
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return "", fmt.Errorf("init pdf parser failed: %w", err)
	}
	docs, err := p.Parse(ctx, srcFile, parser.WithURI(fileHeader.Filename))
	if err != nil {
		return "", fmt.Errorf("parse pdf failed: %w", err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("pdf produced no content: %s", fileHeader.Filename)
	}
	fmt.Printf(">>> [性能] PDF 解析耗时: %v\n", time.Since(startTime))

	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.Content)
		sb.WriteString("\n")
	}
	fullText := processors.CleanText(sb.String())
	if fullText == "" {
		return "", fmt.Errorf("pdf text empty after cleaning: %s", fileHeader.Filename)
	}

	docID := uuid.New().String()
	document := &types.Document{
		ID:       docID,
		DealID:   dealID,
		TenantID: tenantID,
		FileName: fileHeader.Filename,
		FullText: fullText,
		Status:   types.DocStatusPending,
	}
	if err := s.repo.CreateDocument(ctx, document); err != nil {
		return "", fmt.Errorf("create document failed: %w", err)
	}

	// 语义切分
	splitter, err := semantic.NewSplitter(ctx, &semantic.Config{
		Embedding:    s.embedder,
		BufferSize:   5,
		MinChunkSize: 200,
		Separators:   []string{"\n\n", "\n", ". ", "; "},
		LenFunc: func(s string) int {
			return len([]rune(s))
		},
		Percentile: 0.85,
	})
	if err != nil {
		_ = s.repo.DeleteDocumentCascade(ctx, docID)
		return "", fmt.Errorf("init splitter failed: %w", err)
	}

	srcDoc := &schema.Document{
		ID:       docID,
		Content:  fullText,
		MetaData: map[string]any{file.MetaKeyFileName: fileHeader.Filename},
	}
	splitStart := time.Now()
	chunks, err := splitter.Transform(ctx, []*schema.Document{srcDoc})
	if err != nil {
		_ = s.repo.DeleteDocumentCascade(ctx, docID)
		return "", fmt.Errorf("semantic split failed: %w", err)
	}
	chunks, _ = processors.Processor(ctx, chunks)
	if len(chunks) == 0 {
		_ = s.repo.DeleteDocumentCascade(ctx, docID)
		return "", fmt.Errorf("no usable chunks after cleaning: %s", fileHeader.Filename)
	}
	fmt.Printf(">>> [性能] 语义切分耗时: %v, 切分出 %d 个 chunk\n", time.Since(splitStart), len(chunks))

	// 条款类型分类（失败降级为 other，不中断）
	classifyStart := time.Now()
	typeResults := classify.ClassifyClauses(ctx, s.chatModel, chunks, s.policy)
	fmt.Printf(">>> [性能] 条款分类耗时: %v\n", time.Since(classifyStart))

	clauses := make([]*types.ClauseBoundary, 0, len(chunks))
	for i, chunk := range chunks {
		chunk.ID = uuid.New().String()
		if chunk.MetaData == nil {
			chunk.MetaData = make(map[string]any)
		}
		chunk.MetaData["doc_id"] = docID
		chunk.MetaData["tenant_id"] = tenantID
		chunk.MetaData["clause_type"] = typeResults[i].ClauseType

		clauses = append(clauses, &types.ClauseBoundary{
			ID:         chunk.ID,
			DocumentID: docID,
			Content:    chunk.Content,
			ClauseType: typeResults[i].ClauseType,
			Confidence: typeResults[i].Confidence,
		})
	}
	if err := s.repo.CreateClauses(ctx, clauses); err != nil {
		_ = s.repo.DeleteDocumentCascade(ctx, docID)
		return "", fmt.Errorf("create clauses failed: %w", err)
	}

	// 条款库匹配：给每个条款一个库相似度和库风险，核对阶段要用
	libStart := time.Now()
	for _, clause := range clauses {
		m := &types.ClauseMatchResult{
			DocumentID:       docID,
			ClauseBoundaryID: &clause.ID,
		}
		match, err := milvus.MatchLibrary(ctx, s.milvusClient, vars.LIBRARYCOLLECTION, s.embedder, clause.Content)
		if err != nil {
			fmt.Printf(">>> [Ingest] 条款 %s 库匹配失败, 按无信号处理: %v\n", clause.ID, err)
		}
		if match == nil {
			// 空库或没命中：没有风险信号，留给人工
			m.SimilarityScore = 0
			m.RAGRisk = types.RAGAmber
		} else {
			m.SimilarityScore = match.Score
			m.RAGRisk = libraryRisk(match)
		}
		if err := s.repo.CreateMatchResult(ctx, m); err != nil {
			_ = s.repo.DeleteDocumentCascade(ctx, docID)
			return "", fmt.Errorf("create match result failed: %w", err)
		}
	}
	fmt.Printf(">>> [性能] 条款库匹配耗时: %v\n", time.Since(libStart))

	// ES 存储
	esStart := time.Now()
	if err := s.esIndexer.Store(ctx, document, clauses); err != nil {
		_ = s.repo.DeleteDocumentCascade(ctx, docID)
		return "", fmt.Errorf("es store failed, pg rolled back: %w", err)
	}
	fmt.Printf(">>> [性能] ES 存储耗时: %v\n", time.Since(esStart))

	// 向量化存储
	milvusStart := time.Now()
	if _, err := s.clauseIndexer.Store(ctx, chunks); err != nil {
		_ = s.repo.DeleteDocumentCascade(ctx, docID)
		_ = s.esIndexer.DeleteByDocID(ctx, docID)
		return "", fmt.Errorf("milvus store failed, pg/es rolled back: %w", err)
	}
	fmt.Printf(">>> [性能] Milvus 存储耗时: %v\n", time.Since(milvusStart))

	fmt.Printf(">>> [Ingest] ✅ DocID=%s 摄取完成, %d 个条款, 总耗时: %v\n", docID, len(clauses), time.Since(startTime))
	return docID, nil
}

// IngestLibraryTemplate 往标准条款库加一条已审模板
func (s *IngestionService) IngestLibraryTemplate(ctx context.Context, content, clauseType, riskHint string) (string, error) {
	if !reconcile.IsValidClauseType(clauseType) {
		return "", fmt.Errorf("invalid clause type: %s", clauseType)
	}
	switch riskHint {
	case types.RAGGreen, types.RAGAmber, types.RAGRed:
	default:
		return "", fmt.Errorf("invalid risk hint: %s", riskHint)
	}

	doc := &schema.Document{
		ID:      uuid.New().String(),
		Content: processors.CleanText(content),
		MetaData: map[string]any{
			"clause_type": clauseType,
			"risk_hint":   riskHint,
		},
	}
	if doc.Content == "" {
		return "", fmt.Errorf("template content empty")
	}
	if _, err := s.libraryIndexer.Store(ctx, []*schema.Document{doc}); err != nil {
		return "", fmt.Errorf("library store failed: %w", err)
	}
	fmt.Printf(">>> [Library] 模板入库: %s type=%s risk=%s\n", doc.ID, clauseType, riskHint)
	return doc.ID, nil
}

// libraryRisk 库相似度 + 模板风险标记 -> 条款库风险
// 模板本身标红的，再像也得红
func libraryRisk(match *milvus.LibraryMatch) string {
	if match.RiskHint == types.RAGRed {
		return types.RAGRed
	}
	switch {
	case match.Score >= libraryGreenThreshold:
		if match.RiskHint == types.RAGAmber {
			return types.RAGAmber
		}
		return types.RAGGreen
	case match.Score >= libraryAmberThreshold:
		return types.RAGAmber
	default:
		return types.RAGRed
	}
}
