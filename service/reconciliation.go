package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"

	"recon-engine/logic/reconcile"
	"recon-engine/types"
)

// ReconStore 核对流程需要的持久化能力，postgres.Repo 实现它
type ReconStore interface {
	GetDocument(ctx context.Context, docID string) (*types.Document, error)
	ListTermsByDeal(ctx context.Context, dealID string) ([]*types.PreAgreedTerm, error)
	ListClauses(ctx context.Context, docID string) ([]*types.ClauseBoundary, error)
	ListMatchResults(ctx context.Context, docID string) ([]*types.ClauseMatchResult, error)
	CreateMatchResult(ctx context.Context, m *types.ClauseMatchResult) error
	BatchUpdateMatchResults(ctx context.Context, results []*types.ClauseMatchResult) error
	CreateDiscrepancy(ctx context.Context, d *types.Discrepancy) (bool, error)
	CreateReviewItem(ctx context.Context, item *types.ReviewQueueItem) (bool, error)
	MarkDocumentStatus(ctx context.Context, docID string, status int) error
}

type ReconService struct {
	store     ReconStore
	chatModel model.ToolCallingChatModel
	policy    reconcile.RetryPolicy
}

func NewReconService(store ReconStore, chatModel model.ToolCallingChatModel) *ReconService {
	return &ReconService{
		store:     store,
		chatModel: chatModel,
		policy:    reconcile.DefaultRetryPolicy(),
	}
}

// PerformReconciliation 对一份文档执行预定条款核对
// 幂等：已有比对留痕的文档直接跳过；重复产生的 discrepancy 撞唯一索引按已存在处理
func (s *ReconService) PerformReconciliation(ctx context.Context, docID string) (*types.ReconSummary, error) {
	startTime := time.Now()
	summary := &types.ReconSummary{}
	fmt.Printf(">>> [Recon] 开始核对 DocID=%s\n", docID)

	// 1. 取文档
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	if doc.DealID == "" {
		fmt.Printf(">>> [Recon] DocID=%s 没有 deal 上下文，跳过\n", docID)
		summary.Skipped = true
		summary.Reason = "document has no deal context"
		_ = s.store.MarkDocumentStatus(ctx, docID, types.DocStatusReconciled)
		summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
		return summary, nil
	}

	// 2. 幂等检查：任何一条 match result 已有比对留痕就认为跑过了
	existing, err := s.store.ListMatchResults(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("list match results failed: %w", err)
	}
	for _, m := range existing {
		if m.GPTAnalysis != nil && len(m.GPTAnalysis.PreAgreedComparisons) > 0 {
			fmt.Printf(">>> [Recon] DocID=%s 已核对过，跳过\n", docID)
			summary.Skipped = true
			summary.Reason = "already_processed"
			summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
			return summary, nil
		}
	}

	// 3. 取预定条款
	terms, err := s.store.ListTermsByDeal(ctx, doc.DealID)
	if err != nil {
		return nil, fmt.Errorf("list terms failed: %w", err)
	}
	if len(terms) == 0 {
		fmt.Printf(">>> [Recon] DealID=%s 没有预定条款，跳过\n", doc.DealID)
		summary.Skipped = true
		summary.Reason = "deal has no pre-agreed terms"
		_ = s.store.MarkDocumentStatus(ctx, docID, types.DocStatusReconciled)
		summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
		return summary, nil
	}

	clauses, err := s.store.ListClauses(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("list clauses failed: %w", err)
	}

	// 4. 类目归一化（失败降级，用原始 terms 继续）
	normStart := time.Now()
	terms = reconcile.NormalizeTerms(ctx, s.chatModel, terms, s.policy)
	fmt.Printf(">>> [性能] 类目归一化耗时: %v\n", time.Since(normStart))

	timestamp := time.Now().UTC().Format(time.RFC3339)

	// 5. 身份条款走字符串检查，不进 LLM
	var semanticTerms []*types.PreAgreedTerm
	identityProcessed := make(map[string]bool)
	for _, term := range terms {
		if !reconcile.IsIdentityTerm(term) {
			semanticTerms = append(semanticTerms, term)
			continue
		}
		identityProcessed[term.ID] = true
		if err := s.processIdentityTerm(ctx, doc, term, timestamp, summary); err != nil {
			fmt.Printf(">>> [Recon] 身份条款 %s 处理失败: %v\n", term.ID, err)
		}
	}

	// 6. 候选选取：只有带库匹配结果的条款参与比对
	resultsByClause := make(map[string]*types.ClauseMatchResult, len(existing))
	byResultID := make(map[string]*types.ClauseMatchResult, len(existing))
	for _, m := range existing {
		byResultID[m.ID] = m
		if m.ClauseBoundaryID != nil {
			resultsByClause[*m.ClauseBoundaryID] = m
		}
	}
	candidates := make(map[string][]reconcile.Candidate, len(semanticTerms))
	for _, term := range semanticTerms {
		candidates[term.ID] = reconcile.SelectCandidates(term, clauses, resultsByClause)
	}

	// 7. 批量 LLM 比对 + best-match 决议
	comps := reconcile.BuildComparisons(semanticTerms, candidates)
	summary.P1ComparisonsMade = len(comps)
	batchStart := time.Now()
	results := reconcile.RunBatchComparisons(ctx, s.chatModel, comps, s.policy)
	fmt.Printf(">>> [性能] 批量比对耗时: %v (%d 次比对)\n", time.Since(batchStart), len(comps))
	best := reconcile.ResolveBestMatches(comps, results)

	// 8. 按条款聚合比对结论，算 RAG 并落库
	outcomesByResult := make(map[string][]reconcile.TermOutcome)
	var updated []*types.ClauseMatchResult
	touched := make(map[string]bool)
	for _, term := range semanticTerms {
		bm, ok := best[term.ID]
		if !ok {
			continue
		}
		m := byResultID[bm.Comparison.MatchResultID]
		if m == nil {
			continue
		}
		termRAG := reconcile.CalculateTermRAG(bm.Result)
		outcomesByResult[m.ID] = append(outcomesByResult[m.ID], reconcile.TermOutcome{
			RAG: termRAG, IsMandatory: term.IsMandatory,
		})
		if m.GPTAnalysis == nil {
			m.GPTAnalysis = &types.GPTAnalysis{ReconciliationTimestamp: timestamp}
		}
		m.GPTAnalysis.PreAgreedComparisons = append(m.GPTAnalysis.PreAgreedComparisons, types.PreAgreedComparison{
			TermID:        term.ID,
			TermCategory:  term.Category(),
			ExpectedValue: term.ExpectedValue,
			IsMandatory:   term.IsMandatory,
			Matches:       bm.Result.Matches,
			Severity:      bm.Result.Severity,
			Explanation:   bm.Result.Explanation,
			Differences:   bm.Result.Differences,
			Confidence:    bm.Result.Confidence,
			RAG:           termRAG,
			MatchReason:   bm.Comparison.MatchReason,
			SemanticScore: bm.Comparison.SemanticScore,
		})
		if !touched[m.ID] {
			touched[m.ID] = true
			updated = append(updated, m)
		}
	}

	for _, m := range updated {
		m.RAGParsing = reconcile.CalculateClauseRAG(outcomesByResult[m.ID])
		m.RAGStatus = reconcile.CalculateFinalRAG(m.RAGParsing, m.RAGRisk)
	}

	// 9. 生成 discrepancy（只增不改，幂等）
	// (match_result_id, type) 唯一，同一条款多个红 term 只留一条：
	// 强制项先写，撞键时留痕的必须是 critical 那条
	for _, mandatory := range []bool{true, false} {
		for _, term := range semanticTerms {
			if term.IsMandatory != mandatory {
				continue
			}
			bm, ok := best[term.ID]
			if !ok {
				continue
			}
			if reconcile.CalculateTermRAG(bm.Result) != types.RAGRed {
				continue
			}
			severity := types.SeverityError
			if term.IsMandatory {
				severity = types.SeverityCritical
			}
			created, err := s.store.CreateDiscrepancy(ctx, &types.Discrepancy{
				MatchResultID:   bm.Comparison.MatchResultID,
				DocumentID:      docID,
				DiscrepancyType: types.DiscrepancyConflicting,
				Severity:        severity,
				Description:     fmt.Sprintf("Pre-agreed term %q is not satisfied: %s", term.Category(), bm.Result.Explanation),
				AffectedText:    excerpt(bm.Comparison.Clause.Content, 500),
				SuggestedAction: fmt.Sprintf("Review clause against expected value: %s", term.ExpectedValue),
			})
			if err != nil {
				fmt.Printf(">>> [Recon] discrepancy 写入失败: %v\n", err)
				continue
			}
			if created {
				summary.DiscrepanciesCreated++
			}
		}
	}

	// 库风险单边否决：比对没问题但库风险是红，也要留痕
	for _, m := range updated {
		if m.RAGRisk != types.RAGRed || m.RAGParsing == types.RAGRed {
			continue
		}
		created, err := s.store.CreateDiscrepancy(ctx, &types.Discrepancy{
			MatchResultID:   m.ID,
			DocumentID:      docID,
			DiscrepancyType: types.DiscrepancyModified,
			Severity:        types.SeverityError,
			Description:     "Clause deviates from the approved clause library (library risk red)",
			SuggestedAction: "Compare clause against the closest library template",
		})
		if err != nil {
			fmt.Printf(">>> [Recon] discrepancy 写入失败: %v\n", err)
			continue
		}
		if created {
			summary.DiscrepanciesCreated++
		}
	}

	// 10. 强制条款缺失检测：身份没处理过、best-match 也没有任何决议的强制项
	for _, term := range terms {
		if !term.IsMandatory || identityProcessed[term.ID] {
			continue
		}
		if _, ok := best[term.ID]; ok {
			continue
		}
		summary.MissingTerms++
		if err := s.recordMissingTerm(ctx, docID, term, timestamp, summary); err != nil {
			fmt.Printf(">>> [Recon] 缺失条款 %s 记录失败: %v\n", term.ID, err)
		}
	}

	// discrepancy 计数回填后再落库
	for _, m := range updated {
		count := 0
		for _, c := range m.GPTAnalysis.PreAgreedComparisons {
			if c.RAG == types.RAGRed {
				count++
			}
		}
		m.DiscrepancyCount = count
	}
	if err := s.store.BatchUpdateMatchResults(ctx, updated); err != nil {
		return nil, fmt.Errorf("batch update match results failed: %w", err)
	}
	summary.ClausesUpdated += len(updated)

	// 11. 低置信度条款进人工复核队列
	for _, m := range updated {
		if !reconcile.NeedsReview(m.SimilarityScore) {
			continue
		}
		created, err := s.store.CreateReviewItem(ctx, &types.ReviewQueueItem{
			DocumentID:       docID,
			MatchResultID:    m.ID,
			ClauseBoundaryID: m.ClauseBoundaryID,
			Priority:         reconcile.CalculateReviewPriority(m.SimilarityScore),
			SimilarityScore:  m.SimilarityScore,
		})
		if err != nil {
			fmt.Printf(">>> [Recon] 复核工单写入失败: %v\n", err)
			continue
		}
		if created {
			fmt.Printf(">>> [Recon] 条款 %s 进入复核队列 (score=%.2f)\n", m.ID, m.SimilarityScore)
		}
	}

	if err := s.store.MarkDocumentStatus(ctx, docID, types.DocStatusReconciled); err != nil {
		fmt.Printf(">>> [Recon] 状态更新失败: %v\n", err)
	}

	summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
	fmt.Printf(">>> [Recon] ✅ DocID=%s 核对完成: %d 次比对, %d 身份条款, %d 条款更新, %d discrepancy, %d 缺失, 耗时 %dms\n",
		docID, summary.P1ComparisonsMade, summary.IdentityTermsProcessed, summary.ClausesUpdated,
		summary.DiscrepanciesCreated, summary.MissingTerms, summary.ExecutionTimeMs)
	return summary, nil
}

// processIdentityTerm 身份条款：字符串存在性检查 + 虚拟 match result 留痕
func (s *ReconService) processIdentityTerm(ctx context.Context, doc *types.Document, term *types.PreAgreedTerm, timestamp string, summary *types.ReconSummary) error {
	match := reconcile.MatchIdentity(term.ExpectedValue, "", doc.FullText)
	rag := reconcile.RAGForIdentity(match, term.IsMandatory)
	summary.IdentityTermsProcessed++

	explanation := fmt.Sprintf("identity check (%s): expected %q", match.MatchType, term.ExpectedValue)
	m := &types.ClauseMatchResult{
		DocumentID:      doc.ID,
		SimilarityScore: match.Confidence,
		RAGRisk:         types.RAGGreen, // 虚拟行没有库风险信号
		RAGParsing:      rag,
		RAGStatus:       rag,
		GPTAnalysis: &types.GPTAnalysis{
			ReconciliationTimestamp: timestamp,
			PreAgreedComparisons: []types.PreAgreedComparison{{
				TermID:        term.ID,
				TermCategory:  term.Category(),
				ExpectedValue: term.ExpectedValue,
				IsMandatory:   term.IsMandatory,
				Matches:       match.Matches,
				Severity:      identitySeverity(match, term.IsMandatory),
				Explanation:   explanation,
				Confidence:    match.Confidence,
				RAG:           rag,
				MatchReason:   "identity_check",
			}},
		},
	}
	if rag == types.RAGRed {
		m.DiscrepancyCount = 1
	}
	if err := s.store.CreateMatchResult(ctx, m); err != nil {
		return err
	}
	summary.ClausesUpdated++

	// 强制身份条款缺失是最高级别问题：合同可能签错了主体
	if rag == types.RAGRed {
		summary.MissingTerms++
		created, err := s.store.CreateDiscrepancy(ctx, &types.Discrepancy{
			MatchResultID:   m.ID,
			DocumentID:      doc.ID,
			DiscrepancyType: types.DiscrepancyMissing,
			Severity:        types.SeverityCritical,
			Description:     fmt.Sprintf("Mandatory identity term %q (%s) not found in document", term.Category(), term.ExpectedValue),
			SuggestedAction: "Verify the contract names the correct party",
		})
		if err != nil {
			return err
		}
		if created {
			summary.DiscrepanciesCreated++
		}
	}
	return nil
}

// recordMissingTerm 强制条款没有任何可比对的条款：虚拟红行 + missing discrepancy
func (s *ReconService) recordMissingTerm(ctx context.Context, docID string, term *types.PreAgreedTerm, timestamp string, summary *types.ReconSummary) error {
	m := &types.ClauseMatchResult{
		DocumentID:       docID,
		RAGRisk:          types.RAGGreen,
		RAGParsing:       types.RAGRed,
		RAGStatus:        types.RAGRed,
		DiscrepancyCount: 1,
		GPTAnalysis: &types.GPTAnalysis{
			ReconciliationTimestamp: timestamp,
			PreAgreedComparisons: []types.PreAgreedComparison{{
				TermID:        term.ID,
				TermCategory:  term.Category(),
				ExpectedValue: term.ExpectedValue,
				IsMandatory:   true,
				Matches:       false,
				Severity:      types.SeverityMajor,
				Explanation:   "no candidate clause found in document",
				RAG:           types.RAGRed,
				MatchReason:   "missing",
			}},
		},
	}
	if err := s.store.CreateMatchResult(ctx, m); err != nil {
		return err
	}
	summary.ClausesUpdated++

	created, err := s.store.CreateDiscrepancy(ctx, &types.Discrepancy{
		MatchResultID:   m.ID,
		DocumentID:      docID,
		DiscrepancyType: types.DiscrepancyMissing,
		Severity:        types.SeverityCritical,
		Description:     fmt.Sprintf("Mandatory term %q has no matching clause in the document", term.Category()),
		SuggestedAction: fmt.Sprintf("Add a clause covering: %s", term.ExpectedValue),
	})
	if err != nil {
		return err
	}
	if created {
		summary.DiscrepanciesCreated++
	}
	return nil
}

func identitySeverity(m types.IdentityMatchResult, isMandatory bool) string {
	switch m.MatchType {
	case types.IdentityExact, types.IdentityNormalized:
		return types.SeverityNone
	case types.IdentityPartial:
		return types.SeverityMinor
	default:
		if isMandatory {
			return types.SeverityMajor
		}
		return types.SeverityMinor
	}
}

func excerpt(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
