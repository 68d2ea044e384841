package types

import "time"

// --- 文档状态 ---

// 使用 int 表示状态，比 string 更高效
const (
	DocStatusPending    = 1 // 待核对（摄取完成，等待 P1 核对）
	DocStatusReconciled = 2 // 已核对
)

// Document 一份已摄取的合同文档
type Document struct {
	ID       string `json:"id"`
	DealID   string `json:"deal_id"`   // 所属 deal，为空表示没有预定条款上下文
	TenantID string `json:"tenant_id"`
	FileName string `json:"file_name"`
	FullText string `json:"full_text"` // 抽取出的全文，身份条款匹配要用
	Status   int    `json:"status"`
}

// PreAgreedTerm 预定条款（PAT）：deal 层面约定好的预期
// 核对过程中只读，归一化结果写在 Normalized* 字段上，不回写数据库
type PreAgreedTerm struct {
	ID                 string   `json:"id"`
	DealID             string   `json:"deal_id"`
	TermCategory       string   `json:"term_category"` // 自由文本，可能有错别字
	TermDescription    string   `json:"term_description"`
	ExpectedValue      string   `json:"expected_value"`
	IsMandatory        bool     `json:"is_mandatory"`
	RelatedClauseTypes []string `json:"related_clause_types,omitempty"` // 可选的显式类型提示

	// LLM 归一化补充的字段
	NormalizedTermCategory string `json:"normalized_term_category,omitempty"`
	NormalizedClauseType   string `json:"normalized_clause_type,omitempty"`
}

// Category 优先取归一化后的类目
func (t *PreAgreedTerm) Category() string {
	if t.NormalizedTermCategory != "" {
		return t.NormalizedTermCategory
	}
	return t.TermCategory
}

// ClauseBoundary 上游抽取出的合同条款，核对过程中不可变
type ClauseBoundary struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	ClauseType string  `json:"clause_type"`
	Confidence float64 `json:"confidence"`
}

// ClauseMatchResult 每个条款一行（身份条款/缺失条款为无 clause 的虚拟行）
type ClauseMatchResult struct {
	ID               string       `json:"id"`
	DocumentID       string       `json:"document_id"`
	ClauseBoundaryID *string      `json:"clause_boundary_id"` // 虚拟行为 nil
	SimilarityScore  float64      `json:"similarity_score"`   // 条款库匹配置信度 0-1
	RAGRisk          string       `json:"rag_risk"`           // 条款库风险（上游写入）
	RAGParsing       string       `json:"rag_parsing"`        // PAT 比对结果（本核心写入）
	RAGStatus        string       `json:"rag_status"`         // 最终综合结果（本核心写入）
	GPTAnalysis      *GPTAnalysis `json:"gpt_analysis,omitempty"`
	DiscrepancyCount int          `json:"discrepancy_count"`
}

// GPTAnalysis gpt_analysis JSON 字段的结构
type GPTAnalysis struct {
	PreAgreedComparisons    []PreAgreedComparison `json:"pre_agreed_comparisons"`
	ReconciliationTimestamp string                `json:"reconciliation_timestamp"`
}

// PreAgreedComparison 单条 term 对比的留痕，挂在 gpt_analysis 里
type PreAgreedComparison struct {
	TermID        string   `json:"term_id"`
	TermCategory  string   `json:"term_category"`
	ExpectedValue string   `json:"expected_value"`
	IsMandatory   bool     `json:"is_mandatory"`
	Matches       bool     `json:"matches"`
	Severity      string   `json:"severity"`
	Explanation   string   `json:"explanation"`
	Differences   []string `json:"differences,omitempty"`
	Confidence    float64  `json:"confidence"`
	RAG           string   `json:"rag"`
	MatchReason   string   `json:"match_reason,omitempty"`
	SemanticScore float64  `json:"semantic_score,omitempty"`
}

// ReviewQueueItem 低置信度条款的人工复核工单
type ReviewQueueItem struct {
	ID               string  `json:"id"`
	DocumentID       string  `json:"document_id"`
	MatchResultID    string  `json:"match_result_id"`
	ClauseBoundaryID *string `json:"clause_boundary_id,omitempty"`
	Priority         string  `json:"priority"` // critical / high / medium / low
	SimilarityScore  float64 `json:"similarity_score"`
}

// Discrepancy 合规问题记录，只增不改（审计留痕）
type Discrepancy struct {
	ID              string    `json:"id"`
	MatchResultID   string    `json:"match_result_id"`
	DocumentID      string    `json:"document_id"`
	DiscrepancyType string    `json:"discrepancy_type"` // missing / conflicting / modified
	Severity        string    `json:"severity"`         // critical / error
	Description     string    `json:"description"`
	AffectedText    string    `json:"affected_text,omitempty"`
	SuggestedAction string    `json:"suggested_action,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
