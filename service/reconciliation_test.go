package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-engine/logic/reconcile"
	"recon-engine/types"
)

// --- 测试替身 ---

// fakeChatModel 按脚本顺序吐响应
type fakeChatModel struct {
	responses []string
	calls     int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return nil, errors.New("no scripted response")
	}
	return schema.AssistantMessage(f.responses[i], nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported in fake")
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

// memStore 内存版 ReconStore
type memStore struct {
	docs          map[string]*types.Document
	terms         map[string][]*types.PreAgreedTerm
	clauses       map[string][]*types.ClauseBoundary
	results       map[string]*types.ClauseMatchResult
	resultOrder   []string
	discrepancies []*types.Discrepancy
	discKeys      map[string]bool
	reviews       []*types.ReviewQueueItem
	reviewKeys    map[string]bool
	seq           int
}

func newMemStore() *memStore {
	return &memStore{
		docs:       map[string]*types.Document{},
		terms:      map[string][]*types.PreAgreedTerm{},
		clauses:    map[string][]*types.ClauseBoundary{},
		results:    map[string]*types.ClauseMatchResult{},
		discKeys:   map[string]bool{},
		reviewKeys: map[string]bool{},
	}
}

func (m *memStore) GetDocument(ctx context.Context, docID string) (*types.Document, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return nil, errors.New("record not found")
	}
	return doc, nil
}

func (m *memStore) ListTermsByDeal(ctx context.Context, dealID string) ([]*types.PreAgreedTerm, error) {
	return m.terms[dealID], nil
}

func (m *memStore) ListClauses(ctx context.Context, docID string) ([]*types.ClauseBoundary, error) {
	return m.clauses[docID], nil
}

func (m *memStore) ListMatchResults(ctx context.Context, docID string) ([]*types.ClauseMatchResult, error) {
	var out []*types.ClauseMatchResult
	for _, id := range m.resultOrder {
		if m.results[id].DocumentID == docID {
			out = append(out, m.results[id])
		}
	}
	return out, nil
}

func (m *memStore) CreateMatchResult(ctx context.Context, r *types.ClauseMatchResult) error {
	if r.ID == "" {
		m.seq++
		r.ID = fmt.Sprintf("mr-%d", m.seq)
	}
	m.results[r.ID] = r
	m.resultOrder = append(m.resultOrder, r.ID)
	return nil
}

func (m *memStore) BatchUpdateMatchResults(ctx context.Context, results []*types.ClauseMatchResult) error {
	for _, r := range results {
		m.results[r.ID] = r
	}
	return nil
}

func (m *memStore) CreateDiscrepancy(ctx context.Context, d *types.Discrepancy) (bool, error) {
	key := d.MatchResultID + "/" + d.DiscrepancyType
	if m.discKeys[key] {
		return false, nil
	}
	m.discKeys[key] = true
	m.discrepancies = append(m.discrepancies, d)
	return true, nil
}

func (m *memStore) CreateReviewItem(ctx context.Context, item *types.ReviewQueueItem) (bool, error) {
	if m.reviewKeys[item.MatchResultID] {
		return false, nil
	}
	m.reviewKeys[item.MatchResultID] = true
	m.reviews = append(m.reviews, item)
	return true, nil
}

func (m *memStore) MarkDocumentStatus(ctx context.Context, docID string, status int) error {
	if doc, ok := m.docs[docID]; ok {
		doc.Status = status
	}
	return nil
}

// --- 场景搭建 ---

func fastRecon(store ReconStore, chat model.ToolCallingChatModel) *ReconService {
	s := NewReconService(store, chat)
	s.policy = reconcile.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return s
}

func seedClause(store *memStore, docID, clauseID, clauseType, content string, similarity float64, risk string) {
	store.clauses[docID] = append(store.clauses[docID], &types.ClauseBoundary{
		ID: clauseID, DocumentID: docID, Content: content, ClauseType: clauseType, Confidence: 0.9,
	})
	cid := clauseID
	_ = store.CreateMatchResult(context.Background(), &types.ClauseMatchResult{
		ID: "mr-" + clauseID, DocumentID: docID, ClauseBoundaryID: &cid,
		SimilarityScore: similarity, RAGRisk: risk,
	})
}

// 归一化失败不影响流程，测试里第一个 LLM 响应随便给
const junkNormalize = "not json"

func TestPerformReconciliationAllGreen(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{
		ID: "d1", DealID: "deal1", FileName: "a.pdf", Status: types.DocStatusPending,
		FullText: "This agreement is between Acme Corp and Jane Smith. Payment of $10,000 net 30 days.",
	}
	store.terms["deal1"] = []*types.PreAgreedTerm{
		{ID: "t-brand", DealID: "deal1", TermCategory: "Brand Name", ExpectedValue: "Acme Corp", IsMandatory: true},
		{ID: "t-pay", DealID: "deal1", TermCategory: "Payment Terms", ExpectedValue: "$10,000 net 30", IsMandatory: true},
	}
	seedClause(store, "d1", "c-pay", "payment_terms", "Payment of $10,000 net 30 days.", 0.92, types.RAGGreen)

	fake := &fakeChatModel{responses: []string{
		junkNormalize,
		`[{"idx":0,"matches":true,"severity":"none","explanation":"amount and timing match","confidence":0.95}]`,
	}}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	assert.Equal(t, 1, summary.P1ComparisonsMade)
	assert.Equal(t, 1, summary.IdentityTermsProcessed)
	assert.Equal(t, 0, summary.DiscrepanciesCreated)
	assert.Equal(t, 0, summary.MissingTerms)

	// 语义条款：比对绿 + 库绿 = 最终绿
	pay := store.results["mr-c-pay"]
	assert.Equal(t, types.RAGGreen, pay.RAGParsing)
	assert.Equal(t, types.RAGGreen, pay.RAGStatus)
	require.NotNil(t, pay.GPTAnalysis)
	require.Len(t, pay.GPTAnalysis.PreAgreedComparisons, 1)
	assert.Equal(t, "t-pay", pay.GPTAnalysis.PreAgreedComparisons[0].TermID)

	// 身份条款：虚拟行，精确命中，绿
	identityRows := 0
	for _, id := range store.resultOrder {
		r := store.results[id]
		if r.ClauseBoundaryID == nil {
			identityRows++
			assert.Equal(t, types.RAGGreen, r.RAGParsing)
		}
	}
	assert.Equal(t, 1, identityRows)

	assert.Equal(t, types.DocStatusReconciled, store.docs["d1"].Status)
}

func TestPerformReconciliationConflictingMandatory(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{
		ID: "d1", DealID: "deal1", Status: types.DocStatusPending,
		FullText: "Exclusivity period of six months in the beverage category.",
	}
	store.terms["deal1"] = []*types.PreAgreedTerm{
		{ID: "t-excl", DealID: "deal1", TermCategory: "Exclusivity", ExpectedValue: "3 months beverage category", IsMandatory: true},
	}
	seedClause(store, "d1", "c-excl", "exclusivity", "Talent agrees to a six month exclusivity period.", 0.9, types.RAGGreen)

	fake := &fakeChatModel{responses: []string{
		junkNormalize,
		`[{"idx":0,"matches":false,"severity":"major","explanation":"6 months exceeds agreed 3 months","differences":["duration 6 vs 3 months"],"confidence":0.9}]`,
	}}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)

	m := store.results["mr-c-excl"]
	assert.Equal(t, types.RAGRed, m.RAGParsing)
	assert.Equal(t, types.RAGRed, m.RAGStatus)
	assert.Equal(t, 1, m.DiscrepancyCount)

	// 有决议但不满足：是 conflicting 不是 missing
	assert.Equal(t, 0, summary.MissingTerms)
	assert.Equal(t, 1, summary.DiscrepanciesCreated)
	require.Len(t, store.discrepancies, 1)
	d := store.discrepancies[0]
	assert.Equal(t, types.DiscrepancyConflicting, d.DiscrepancyType)
	assert.Equal(t, types.SeverityCritical, d.Severity)
}

func TestPerformReconciliationMixedRedsKeepCritical(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{
		ID: "d1", DealID: "deal1", Status: types.DocStatusPending, FullText: "x",
	}
	// 非强制项排在前面：同一条款的 conflicting 留痕必须仍是 critical
	store.terms["deal1"] = []*types.PreAgreedTerm{
		{ID: "t-opt", DealID: "deal1", TermCategory: "Payment Terms", ExpectedValue: "$1", IsMandatory: false},
		{ID: "t-mand", DealID: "deal1", TermCategory: "Payment Terms", ExpectedValue: "$2", IsMandatory: true},
	}
	seedClause(store, "d1", "c-pay", "payment_terms", "Payment of $9.", 0.9, types.RAGGreen)

	fake := &fakeChatModel{responses: []string{
		junkNormalize,
		`[{"idx":0,"matches":false,"severity":"major","confidence":0.9},` +
			`{"idx":1,"matches":false,"severity":"major","confidence":0.9}]`,
	}}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)

	assert.Equal(t, types.RAGRed, store.results["mr-c-pay"].RAGParsing)
	assert.Equal(t, 1, summary.DiscrepanciesCreated)
	require.Len(t, store.discrepancies, 1)
	assert.Equal(t, types.DiscrepancyConflicting, store.discrepancies[0].DiscrepancyType)
	assert.Equal(t, types.SeverityCritical, store.discrepancies[0].Severity)
}

func TestPerformReconciliationMalformedBatch(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{
		ID: "d1", DealID: "deal1", Status: types.DocStatusPending, FullText: "some text",
	}
	store.terms["deal1"] = []*types.PreAgreedTerm{
		{ID: "t-pay", DealID: "deal1", TermCategory: "Payment Terms", ExpectedValue: "$1", IsMandatory: true},
	}
	seedClause(store, "d1", "c-pay", "payment_terms", "Payment clause.", 0.9, types.RAGGreen)

	// 比对批次整个坏掉：不报错，强制项按缺失处理
	fake := &fakeChatModel{responses: []string{junkNormalize, "oops not json", "still not json"}}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.P1ComparisonsMade)
	assert.Equal(t, 1, summary.MissingTerms)
	assert.Equal(t, 1, summary.DiscrepanciesCreated)
	require.Len(t, store.discrepancies, 1)
	assert.Equal(t, types.DiscrepancyMissing, store.discrepancies[0].DiscrepancyType)
	assert.Equal(t, types.SeverityCritical, store.discrepancies[0].Severity)
}

func TestPerformReconciliationMissingMandatoryTerm(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{
		ID: "d1", DealID: "deal1", Status: types.DocStatusPending, FullText: "payment only contract",
	}
	store.terms["deal1"] = []*types.PreAgreedTerm{
		{ID: "t-pay", DealID: "deal1", TermCategory: "Payment Terms", ExpectedValue: "$1", IsMandatory: true},
		{ID: "t-gov", DealID: "deal1", TermCategory: "Governing Law", ExpectedValue: "State of New York", IsMandatory: true},
	}
	// 只有 payment 条款，governing law 无候选
	seedClause(store, "d1", "c-pay", "payment_terms", "Payment clause.", 0.9, types.RAGGreen)

	fake := &fakeChatModel{responses: []string{
		junkNormalize,
		`[{"idx":0,"matches":true,"severity":"none","confidence":0.9}]`,
	}}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MissingTerms)
	require.Len(t, store.discrepancies, 1)
	assert.Equal(t, types.DiscrepancyMissing, store.discrepancies[0].DiscrepancyType)

	// 缺失项有一条红色虚拟行
	foundVirtualRed := false
	for _, id := range store.resultOrder {
		r := store.results[id]
		if r.ClauseBoundaryID == nil && r.RAGStatus == types.RAGRed {
			foundVirtualRed = true
		}
	}
	assert.True(t, foundVirtualRed)
}

func TestPerformReconciliationIdempotent(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{ID: "d1", DealID: "deal1", Status: types.DocStatusReconciled, FullText: "x"}
	cid := "c1"
	_ = store.CreateMatchResult(context.Background(), &types.ClauseMatchResult{
		ID: "mr-old", DocumentID: "d1", ClauseBoundaryID: &cid,
		GPTAnalysis: &types.GPTAnalysis{
			PreAgreedComparisons:    []types.PreAgreedComparison{{TermID: "t1", Matches: true}},
			ReconciliationTimestamp: "2026-01-01T00:00:00Z",
		},
	})

	fake := &fakeChatModel{}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, "already_processed", summary.Reason)
	assert.Equal(t, 0, fake.calls) // 没碰 LLM
	assert.Empty(t, store.discrepancies)
}

func TestPerformReconciliationNoDealContext(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{ID: "d1", DealID: "", Status: types.DocStatusPending, FullText: "x"}

	fake := &fakeChatModel{}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, 0, fake.calls)
	assert.Equal(t, types.DocStatusReconciled, store.docs["d1"].Status)
}

func TestPerformReconciliationLowConfidenceGoesToReview(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{
		ID: "d1", DealID: "deal1", Status: types.DocStatusPending, FullText: "x",
	}
	store.terms["deal1"] = []*types.PreAgreedTerm{
		{ID: "t-pay", DealID: "deal1", TermCategory: "Payment Terms", ExpectedValue: "$1", IsMandatory: false},
	}
	// 库匹配置信度 0.55 -> high 优先级复核
	seedClause(store, "d1", "c-pay", "payment_terms", "Payment clause.", 0.55, types.RAGAmber)

	fake := &fakeChatModel{responses: []string{
		junkNormalize,
		`[{"idx":0,"matches":true,"severity":"none","confidence":0.9}]`,
	}}
	svc := fastRecon(store, fake)

	_, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)

	require.Len(t, store.reviews, 1)
	assert.Equal(t, "mr-c-pay", store.reviews[0].MatchResultID)
	assert.Equal(t, reconcile.PriorityHigh, store.reviews[0].Priority)

	// 比对绿但库 amber：最终 amber
	assert.Equal(t, types.RAGAmber, store.results["mr-c-pay"].RAGStatus)
}

func TestPerformReconciliationLibraryRiskVeto(t *testing.T) {
	store := newMemStore()
	store.docs["d1"] = &types.Document{
		ID: "d1", DealID: "deal1", Status: types.DocStatusPending, FullText: "x",
	}
	store.terms["deal1"] = []*types.PreAgreedTerm{
		{ID: "t-pay", DealID: "deal1", TermCategory: "Payment Terms", ExpectedValue: "$1", IsMandatory: true},
	}
	// 比对通过但条款偏离库模板（库风险红）
	seedClause(store, "d1", "c-pay", "payment_terms", "Payment clause.", 0.9, types.RAGRed)

	fake := &fakeChatModel{responses: []string{
		junkNormalize,
		`[{"idx":0,"matches":true,"severity":"none","confidence":0.9}]`,
	}}
	svc := fastRecon(store, fake)

	summary, err := svc.PerformReconciliation(context.Background(), "d1")
	require.NoError(t, err)

	m := store.results["mr-c-pay"]
	assert.Equal(t, types.RAGGreen, m.RAGParsing)
	assert.Equal(t, types.RAGRed, m.RAGStatus) // 单边否决

	assert.Equal(t, 1, summary.DiscrepanciesCreated)
	require.Len(t, store.discrepancies, 1)
	assert.Equal(t, types.DiscrepancyModified, store.discrepancies[0].DiscrepancyType)
}
