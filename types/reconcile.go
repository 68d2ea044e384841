package types

// --- RAG 红绿灯 ---

const (
	RAGGreen = "green"
	RAGAmber = "amber"
	RAGRed   = "red"
)

// --- 比对结果枚举 ---

const (
	SeverityNone  = "none"
	SeverityMinor = "minor"
	SeverityMajor = "major"
)

// Discrepancy 类型 / 严重级别
const (
	DiscrepancyMissing     = "missing"
	DiscrepancyConflicting = "conflicting"
	DiscrepancyModified    = "modified"

	SeverityCritical = "critical"
	SeverityError    = "error"
)

// 候选条款的选取来源
const (
	ReasonTypeMatch        = "type_match"
	ReasonFallbackMatch    = "fallback_match"
	ReasonSemanticFallback = "semantic_fallback"
)

// BatchComparison 一次核对运行内的比对工作单元 (term, clause, matchResult)
// 只存在于内存，不落库
type BatchComparison struct {
	Idx           int
	Term          *PreAgreedTerm
	Clause        *ClauseBoundary
	MatchResultID string
	MatchReason   string  // type_match / fallback_match / semantic_fallback
	SemanticScore float64 // 关键词/语义兜底时的重合度
}

// BatchResult LLM 对单个比对请求的输出
type BatchResult struct {
	Idx         int      `json:"idx"`
	Matches     bool     `json:"matches"`
	Severity    string   `json:"severity"` // none / minor / major
	Explanation string   `json:"explanation"`
	Differences []string `json:"differences,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// --- 身份条款（非 LLM） ---

// 身份匹配方式
const (
	IdentityExact      = "exact"
	IdentityNormalized = "normalized"
	IdentityPartial    = "partial"
	IdentityAbsent     = "absent"
)

// IdentityMatchResult 字符串存在性检查的结果
type IdentityMatchResult struct {
	Matches    bool    `json:"matches"`
	MatchType  string  `json:"match_type"` // exact / normalized / partial / absent
	Confidence float64 `json:"confidence"`
	FoundValue string  `json:"found_value,omitempty"`
}

// IdentityTermResult 单个身份条款的核对结论
type IdentityTermResult struct {
	TermID        string              `json:"term_id"`
	TermCategory  string              `json:"term_category"`
	IsMandatory   bool                `json:"is_mandatory"`
	ExpectedValue string              `json:"expected_value"`
	MatchResult   IdentityMatchResult `json:"match_result"`
	RAGParsing    string              `json:"rag_parsing"`
	Explanation   string              `json:"explanation"`
}

// --- 汇总 ---

// ReconSummary performReconciliation 返回给调用方（队列 worker）的结构化汇总
type ReconSummary struct {
	Skipped                bool   `json:"skipped"`
	Reason                 string `json:"reason,omitempty"`
	P1ComparisonsMade      int    `json:"p1_comparisons_made"`
	IdentityTermsProcessed int    `json:"identity_terms_processed"`
	ClausesUpdated         int    `json:"clauses_updated"`
	DiscrepanciesCreated   int    `json:"discrepancies_created"`
	MissingTerms           int    `json:"missing_terms"`
	ExecutionTimeMs        int64  `json:"execution_time_ms"`
}
