package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"recon-engine/api/response"
	"recon-engine/service"
	"recon-engine/storage/postgres"
	"recon-engine/types"
)

type ReconHandler struct {
	ingestionSvc *service.IngestionService
	reconSvc     *service.ReconService
	searchSvc    *service.SearchService
	repo         *postgres.Repo
}

func NewReconHandler(ingestionSvc *service.IngestionService, reconSvc *service.ReconService, searchSvc *service.SearchService, repo *postgres.Repo) *ReconHandler {
	return &ReconHandler{
		ingestionSvc: ingestionSvc,
		reconSvc:     reconSvc,
		searchSvc:    searchSvc,
		repo:         repo,
	}
}

// Upload 上传合同接口
// 表单字段：file（可多个）、deal_id、tenant_id
func (h *ReconHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Fail(c, "文件上传失败或格式错误")
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		response.Fail(c, "未接收到文件，请检查参数名是否为 'file'")
		return
	}
	dealID := c.PostForm("deal_id")
	tenantID := c.PostForm("tenant_id")

	var docIDs []string
	var errorFiles []string
	for _, file := range files {
		fmt.Printf(">>> [Upload] 开始处理文件: %s, 大小: %d\n", file.Filename, file.Size)
		id, err := h.ingestionSvc.UploadAndProcess(c.Request.Context(), file, dealID, tenantID)
		if err != nil {
			fmt.Printf(">>> [Upload] 文件 %s 处理失败: %v\n", file.Filename, err)
			errorFiles = append(errorFiles, file.Filename)
			// 一个文件失败不影响其他文件
			continue
		}
		docIDs = append(docIDs, id)
	}

	if len(docIDs) == 0 && len(errorFiles) > 0 {
		response.Fail(c, fmt.Sprintf("所有文件处理失败: %v", errorFiles))
		return
	}

	response.Success(c, map[string]any{
		"doc_ids":     docIDs,
		"status":      "pending_reconciliation",
		"total_count": len(docIDs),
		"fail_files":  errorFiles,
	})
}

// Reconcile 手动触发一份文档的核对（定时任务之外的即时入口）
func (h *ReconHandler) Reconcile(c *gin.Context) {
	docID := c.Param("doc_id")
	if docID == "" {
		response.Fail(c, "doc_id 不能为空")
		return
	}

	summary, err := h.reconSvc.PerformReconciliation(c.Request.Context(), docID)
	if err != nil {
		response.Fail(c, err.Error())
		return
	}
	response.Success(c, summary)
}

// reportClause 报告里的单条条款视图
type reportClause struct {
	MatchResultID    string             `json:"match_result_id"`
	ClauseBoundaryID *string            `json:"clause_boundary_id,omitempty"`
	SimilarityScore  float64            `json:"similarity_score"`
	RAGRisk          string             `json:"rag_risk"`
	RAGParsing       string             `json:"rag_parsing"`
	RAGStatus        string             `json:"rag_status"`
	DiscrepancyCount int                `json:"discrepancy_count"`
	Analysis         *types.GPTAnalysis `json:"analysis,omitempty"`
}

// Report 核对报告：文档状态 + 整体 RAG + 条款明细 + discrepancy 列表
func (h *ReconHandler) Report(c *gin.Context) {
	docID := c.Param("doc_id")
	ctx := c.Request.Context()

	doc, err := h.repo.GetDocument(ctx, docID)
	if err != nil {
		response.Fail(c, "文档不存在")
		return
	}
	results, err := h.repo.ListMatchResults(ctx, docID)
	if err != nil {
		response.Fail(c, err.Error())
		return
	}
	discrepancies, err := h.repo.ListDiscrepancies(ctx, docID)
	if err != nil {
		response.Fail(c, err.Error())
		return
	}

	clauses := make([]reportClause, 0, len(results))
	overall := ""
	for _, m := range results {
		clauses = append(clauses, reportClause{
			MatchResultID:    m.ID,
			ClauseBoundaryID: m.ClauseBoundaryID,
			SimilarityScore:  m.SimilarityScore,
			RAGRisk:          m.RAGRisk,
			RAGParsing:       m.RAGParsing,
			RAGStatus:        m.RAGStatus,
			DiscrepancyCount: m.DiscrepancyCount,
			Analysis:         m.GPTAnalysis,
		})
		overall = mergeOverallRAG(overall, m.RAGStatus)
	}

	response.Success(c, map[string]any{
		"doc_id":        doc.ID,
		"deal_id":       doc.DealID,
		"file_name":     doc.FileName,
		"status":        doc.Status,
		"overall_rag":   overall,
		"clauses":       clauses,
		"discrepancies": discrepancies,
	})
}

// mergeOverallRAG 整体 RAG：有红即红，全绿才绿
func mergeOverallRAG(acc, next string) string {
	if next == "" {
		return acc
	}
	if acc == "" {
		return next
	}
	if acc == types.RAGRed || next == types.RAGRed {
		return types.RAGRed
	}
	if acc == types.RAGGreen && next == types.RAGGreen {
		return types.RAGGreen
	}
	return types.RAGAmber
}

// ClauseSearch 条款混合检索
func (h *ReconHandler) ClauseSearch(c *gin.Context) {
	var req service.ClauseSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误: query 不能为空")
		return
	}

	hits, err := h.searchSvc.Search(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, err.Error())
		return
	}
	response.Success(c, hits)
}

// libraryTemplateRequest 条款库模板入参
type libraryTemplateRequest struct {
	Content    string `json:"content" binding:"required"`
	ClauseType string `json:"clause_type" binding:"required"`
	RiskHint   string `json:"risk_hint" binding:"required"`
}

// LibraryTemplate 往标准条款库加模板
func (h *ReconHandler) LibraryTemplate(c *gin.Context) {
	var req libraryTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "参数错误: content/clause_type/risk_hint 必填")
		return
	}

	id, err := h.ingestionSvc.IngestLibraryTemplate(c.Request.Context(), req.Content, req.ClauseType, req.RiskHint)
	if err != nil {
		response.Fail(c, err.Error())
		return
	}
	response.Success(c, map[string]any{"template_id": id})
}
