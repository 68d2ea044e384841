package postgres

import (
	"encoding/json"
	"time"

	"recon-engine/types"
)

// Document 对应 documents 表
type Document struct {
	// ID 不使用 gorm.Model 的自增 ID，而是手动指定的 UUID
	ID       string `gorm:"column:id;primaryKey;type:uuid"`
	DealID   string `gorm:"column:deal_id;type:uuid;index"` // 为空表示没有 deal 上下文
	TenantID string `gorm:"column:tenant_id;index"`
	FileName string `gorm:"column:file_name;type:varchar(255);not null"`
	FullText string `gorm:"column:full_text;type:text"`
	Status   int    `gorm:"column:status;type:smallint;default:1;index"` // 1 待核对, 2 已核对

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Document) TableName() string {
	return "documents"
}

// PreAgreedTerm 对应 pre_agreed_terms 表，核对过程中只读
type PreAgreedTerm struct {
	ID                 string `gorm:"column:id;primaryKey;type:uuid"`
	DealID             string `gorm:"column:deal_id;type:uuid;index"`
	TermCategory       string `gorm:"column:term_category;type:varchar(255)"`
	TermDescription    string `gorm:"column:term_description;type:text"`
	ExpectedValue      string `gorm:"column:expected_value;type:text"`
	IsMandatory        bool   `gorm:"column:is_mandatory"`
	RelatedClauseTypes string `gorm:"column:related_clause_types;type:jsonb"` // JSON 数组，可为空

	CreatedAt time.Time
}

func (PreAgreedTerm) TableName() string {
	return "pre_agreed_terms"
}

// ClauseBoundary 对应 clause_boundaries 表
type ClauseBoundary struct {
	ID         string  `gorm:"column:id;primaryKey;type:uuid"`
	DocumentID string  `gorm:"column:document_id;type:uuid;index"`
	Content    string  `gorm:"column:content;type:text"`
	ClauseType string  `gorm:"column:clause_type;type:varchar(50);index"`
	Confidence float64 `gorm:"column:confidence"`

	CreatedAt time.Time
}

func (ClauseBoundary) TableName() string {
	return "clause_boundaries"
}

// ClauseMatchResult 对应 clause_match_results 表
// 身份条款/缺失条款是没有 clause_boundary_id 的虚拟行
type ClauseMatchResult struct {
	ID               string  `gorm:"column:id;primaryKey;type:uuid"`
	DocumentID       string  `gorm:"column:document_id;type:uuid;index"`
	ClauseBoundaryID *string `gorm:"column:clause_boundary_id;type:uuid;index"`
	SimilarityScore  float64 `gorm:"column:similarity_score"`
	RAGRisk          string  `gorm:"column:rag_risk;type:varchar(10)"`
	RAGParsing       string  `gorm:"column:rag_parsing;type:varchar(10)"`
	RAGStatus        string  `gorm:"column:rag_status;type:varchar(10)"`
	GPTAnalysis      string  `gorm:"column:gpt_analysis;type:jsonb"`
	DiscrepancyCount int     `gorm:"column:discrepancy_count;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ClauseMatchResult) TableName() string {
	return "clause_match_results"
}

// Discrepancy 对应 discrepancies 表，只增不改
// (match_result_id, discrepancy_type) 唯一：并发重试插同一条按已存在处理
type Discrepancy struct {
	ID              string `gorm:"column:id;primaryKey;type:uuid"`
	MatchResultID   string `gorm:"column:match_result_id;type:uuid;uniqueIndex:idx_discrepancy_dedupe"`
	DocumentID      string `gorm:"column:document_id;type:uuid;index"`
	DiscrepancyType string `gorm:"column:discrepancy_type;type:varchar(20);uniqueIndex:idx_discrepancy_dedupe"`
	Severity        string `gorm:"column:severity;type:varchar(10)"`
	Description     string `gorm:"column:description;type:text"`
	AffectedText    string `gorm:"column:affected_text;type:text"`
	SuggestedAction string `gorm:"column:suggested_action;type:text"`

	CreatedAt time.Time
}

func (Discrepancy) TableName() string {
	return "discrepancies"
}

// ReviewQueueItem 对应 review_queue 表：低置信度条款进人工复核
type ReviewQueueItem struct {
	ID               string  `gorm:"column:id;primaryKey;type:uuid"`
	DocumentID       string  `gorm:"column:document_id;type:uuid;index"`
	MatchResultID    string  `gorm:"column:match_result_id;type:uuid;uniqueIndex"`
	ClauseBoundaryID *string `gorm:"column:clause_boundary_id;type:uuid"`
	Priority         string  `gorm:"column:priority;type:varchar(10)"`
	SimilarityScore  float64 `gorm:"column:similarity_score"`
	Status           string  `gorm:"column:status;type:varchar(20);default:pending"`

	CreatedAt time.Time
}

func (ReviewQueueItem) TableName() string {
	return "review_queue"
}

// --- 实体 <-> 领域类型转换 ---

func (d *Document) ToDomain() *types.Document {
	return &types.Document{
		ID: d.ID, DealID: d.DealID, TenantID: d.TenantID,
		FileName: d.FileName, FullText: d.FullText, Status: d.Status,
	}
}

func (t *PreAgreedTerm) ToDomain() *types.PreAgreedTerm {
	out := &types.PreAgreedTerm{
		ID: t.ID, DealID: t.DealID,
		TermCategory:    t.TermCategory,
		TermDescription: t.TermDescription,
		ExpectedValue:   t.ExpectedValue,
		IsMandatory:     t.IsMandatory,
	}
	if t.RelatedClauseTypes != "" {
		// 解析失败按没有提示处理，不报错
		_ = json.Unmarshal([]byte(t.RelatedClauseTypes), &out.RelatedClauseTypes)
	}
	return out
}

func (c *ClauseBoundary) ToDomain() *types.ClauseBoundary {
	return &types.ClauseBoundary{
		ID: c.ID, DocumentID: c.DocumentID,
		Content: c.Content, ClauseType: c.ClauseType, Confidence: c.Confidence,
	}
}

func (m *ClauseMatchResult) ToDomain() *types.ClauseMatchResult {
	out := &types.ClauseMatchResult{
		ID: m.ID, DocumentID: m.DocumentID, ClauseBoundaryID: m.ClauseBoundaryID,
		SimilarityScore: m.SimilarityScore,
		RAGRisk:         m.RAGRisk, RAGParsing: m.RAGParsing, RAGStatus: m.RAGStatus,
		DiscrepancyCount: m.DiscrepancyCount,
	}
	if m.GPTAnalysis != "" && m.GPTAnalysis != "null" {
		var ga types.GPTAnalysis
		if err := json.Unmarshal([]byte(m.GPTAnalysis), &ga); err == nil {
			out.GPTAnalysis = &ga
		}
	}
	return out
}

func matchResultFromDomain(m *types.ClauseMatchResult) *ClauseMatchResult {
	entity := &ClauseMatchResult{
		ID: m.ID, DocumentID: m.DocumentID, ClauseBoundaryID: m.ClauseBoundaryID,
		SimilarityScore: m.SimilarityScore,
		RAGRisk:         m.RAGRisk, RAGParsing: m.RAGParsing, RAGStatus: m.RAGStatus,
		DiscrepancyCount: m.DiscrepancyCount,
	}
	if m.GPTAnalysis != nil {
		if data, err := json.Marshal(m.GPTAnalysis); err == nil {
			entity.GPTAnalysis = string(data)
		}
	}
	return entity
}
