package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"recon-engine/types"
)

// Repo 核对流程的持久化入口，所有方法带 ctx 透传
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) (*Repo, error) {
	// 建表交给 AutoMigrate，列变更仍需手动迁移
	err := db.AutoMigrate(
		&Document{},
		&PreAgreedTerm{},
		&ClauseBoundary{},
		&ClauseMatchResult{},
		&Discrepancy{},
		&ReviewQueueItem{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}
	return &Repo{db: db}, nil
}

// GetDocument 按 ID 查文档，找不到返回 gorm.ErrRecordNotFound
func (r *Repo) GetDocument(ctx context.Context, docID string) (*types.Document, error) {
	var entity Document
	if err := r.db.WithContext(ctx).First(&entity, "id = ?", docID).Error; err != nil {
		return nil, err
	}
	return entity.ToDomain(), nil
}

// GetDocumentByFileName 摄取查重用，不存在返回 nil 不报错
func (r *Repo) GetDocumentByFileName(ctx context.Context, fileName string) (*types.Document, error) {
	var entity Document
	err := r.db.WithContext(ctx).First(&entity, "file_name = ?", fileName).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ToDomain(), nil
}

func (r *Repo) CreateDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	entity := &Document{
		ID: doc.ID, DealID: doc.DealID, TenantID: doc.TenantID,
		FileName: doc.FileName, FullText: doc.FullText, Status: doc.Status,
	}
	return r.db.WithContext(ctx).Create(entity).Error
}

// DeleteDocumentCascade 摄取失败回滚：删掉文档和它派生的所有行
func (r *Repo) DeleteDocumentCascade(ctx context.Context, docID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&ClauseMatchResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&ClauseBoundary{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", docID).Delete(&Document{}).Error
	})
}

func (r *Repo) MarkDocumentStatus(ctx context.Context, docID string, status int) error {
	return r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", docID).
		Update("status", status).Error
}

// ListPendingDocuments 给定时任务用：捞出还没核对过的文档
func (r *Repo) ListPendingDocuments(ctx context.Context, limit int) ([]*types.Document, error) {
	var entities []Document
	err := r.db.WithContext(ctx).
		Where("status = ?", types.DocStatusPending).
		Order("created_at asc").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.Document, 0, len(entities))
	for i := range entities {
		out = append(out, entities[i].ToDomain())
	}
	return out, nil
}

func (r *Repo) ListTermsByDeal(ctx context.Context, dealID string) ([]*types.PreAgreedTerm, error) {
	var entities []PreAgreedTerm
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("created_at asc").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.PreAgreedTerm, 0, len(entities))
	for i := range entities {
		out = append(out, entities[i].ToDomain())
	}
	return out, nil
}

func (r *Repo) CreateTerms(ctx context.Context, terms []*types.PreAgreedTerm) error {
	if len(terms) == 0 {
		return nil
	}
	entities := make([]*PreAgreedTerm, 0, len(terms))
	for _, t := range terms {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		related := ""
		if len(t.RelatedClauseTypes) > 0 {
			related = `["` + strings.Join(t.RelatedClauseTypes, `","`) + `"]`
		}
		entities = append(entities, &PreAgreedTerm{
			ID: t.ID, DealID: t.DealID,
			TermCategory:       t.TermCategory,
			TermDescription:    t.TermDescription,
			ExpectedValue:      t.ExpectedValue,
			IsMandatory:        t.IsMandatory,
			RelatedClauseTypes: related,
		})
	}
	return r.db.WithContext(ctx).Create(entities).Error
}

func (r *Repo) ListClauses(ctx context.Context, docID string) ([]*types.ClauseBoundary, error) {
	var entities []ClauseBoundary
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at asc").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.ClauseBoundary, 0, len(entities))
	for i := range entities {
		out = append(out, entities[i].ToDomain())
	}
	return out, nil
}

func (r *Repo) CreateClauses(ctx context.Context, clauses []*types.ClauseBoundary) error {
	if len(clauses) == 0 {
		return nil
	}
	entities := make([]*ClauseBoundary, 0, len(clauses))
	for _, c := range clauses {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		entities = append(entities, &ClauseBoundary{
			ID: c.ID, DocumentID: c.DocumentID,
			Content: c.Content, ClauseType: c.ClauseType, Confidence: c.Confidence,
		})
	}
	return r.db.WithContext(ctx).Create(entities).Error
}

func (r *Repo) ListMatchResults(ctx context.Context, docID string) ([]*types.ClauseMatchResult, error) {
	var entities []ClauseMatchResult
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at asc").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.ClauseMatchResult, 0, len(entities))
	for i := range entities {
		out = append(out, entities[i].ToDomain())
	}
	return out, nil
}

func (r *Repo) CreateMatchResult(ctx context.Context, m *types.ClauseMatchResult) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(matchResultFromDomain(m)).Error
}

// BatchUpdateMatchResults 先走事务整批提交，事务失败再逐条兜底
// 逐条模式下单条失败只记日志，尽量多落一些结果
func (r *Repo) BatchUpdateMatchResults(ctx context.Context, results []*types.ClauseMatchResult) error {
	if len(results) == 0 {
		return nil
	}

	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range results {
			if err := updateOneMatchResult(tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr == nil {
		return nil
	}

	fmt.Printf(">>> [Repo] ⚠️ 批量更新事务失败，转逐条兜底: %v\n", txErr)
	var lastErr error
	saved := 0
	for _, m := range results {
		if err := updateOneMatchResult(r.db.WithContext(ctx), m); err != nil {
			fmt.Printf(">>> [Repo] 结果 %s 更新失败: %v\n", m.ID, err)
			lastErr = err
			continue
		}
		saved++
	}
	if saved == 0 && lastErr != nil {
		return fmt.Errorf("batch update all failed: %w", lastErr)
	}
	return nil
}

func updateOneMatchResult(tx *gorm.DB, m *types.ClauseMatchResult) error {
	entity := matchResultFromDomain(m)
	return tx.Model(&ClauseMatchResult{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"similarity_score":  entity.SimilarityScore,
			"rag_risk":          entity.RAGRisk,
			"rag_parsing":       entity.RAGParsing,
			"rag_status":        entity.RAGStatus,
			"gpt_analysis":      entity.GPTAnalysis,
			"discrepancy_count": entity.DiscrepancyCount,
			"updated_at":        time.Now(),
		}).Error
}

// CreateDiscrepancy 幂等插入，撞唯一索引视为已存在，返回 created=false
func (r *Repo) CreateDiscrepancy(ctx context.Context, d *types.Discrepancy) (bool, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	entity := &Discrepancy{
		ID: d.ID, MatchResultID: d.MatchResultID, DocumentID: d.DocumentID,
		DiscrepancyType: d.DiscrepancyType, Severity: d.Severity,
		Description: d.Description, AffectedText: d.AffectedText,
		SuggestedAction: d.SuggestedAction,
	}
	err := r.db.WithContext(ctx).Create(entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repo) ListDiscrepancies(ctx context.Context, docID string) ([]*types.Discrepancy, error) {
	var entities []Discrepancy
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at asc").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.Discrepancy, 0, len(entities))
	for i := range entities {
		e := entities[i]
		out = append(out, &types.Discrepancy{
			ID: e.ID, MatchResultID: e.MatchResultID, DocumentID: e.DocumentID,
			DiscrepancyType: e.DiscrepancyType, Severity: e.Severity,
			Description: e.Description, AffectedText: e.AffectedText,
			SuggestedAction: e.SuggestedAction, CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}

// CreateReviewItem 同样幂等，一个 match_result 只进一次复核队列
func (r *Repo) CreateReviewItem(ctx context.Context, item *types.ReviewQueueItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	entity := &ReviewQueueItem{
		ID: item.ID, DocumentID: item.DocumentID, MatchResultID: item.MatchResultID,
		ClauseBoundaryID: item.ClauseBoundaryID,
		Priority:         item.Priority, SimilarityScore: item.SimilarityScore,
		Status: "pending",
	}
	err := r.db.WithContext(ctx).Create(entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
