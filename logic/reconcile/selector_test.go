package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-engine/types"
)

func mkClause(id, clauseType string) *types.ClauseBoundary {
	return &types.ClauseBoundary{ID: id, DocumentID: "doc-1", ClauseType: clauseType, Content: "text of " + id}
}

func mkResult(clauseID string, score float64) *types.ClauseMatchResult {
	cid := clauseID
	return &types.ClauseMatchResult{
		ID: "mr-" + clauseID, DocumentID: "doc-1",
		ClauseBoundaryID: &cid, SimilarityScore: score, RAGRisk: types.RAGGreen,
	}
}

func TestSelectCandidatesTypeMatch(t *testing.T) {
	clauses := []*types.ClauseBoundary{
		mkClause("c1", "payment_terms"),
		mkClause("c2", "exclusivity"),
		mkClause("c3", "payment_terms"),
	}
	results := map[string]*types.ClauseMatchResult{
		"c1": mkResult("c1", 0.7),
		"c2": mkResult("c2", 0.9),
		"c3": mkResult("c3", 0.95),
	}
	term := &types.PreAgreedTerm{ID: "t1", TermCategory: "Payment Terms", ExpectedValue: "$50,000"}

	cands := SelectCandidates(term, clauses, results)
	require.Len(t, cands, 2)
	// 按库匹配置信度降序
	assert.Equal(t, "c3", cands[0].Clause.ID)
	assert.Equal(t, "c1", cands[1].Clause.ID)
	assert.Equal(t, types.ReasonTypeMatch, cands[0].Reason)
}

func TestSelectCandidatesExplicitHint(t *testing.T) {
	clauses := []*types.ClauseBoundary{mkClause("c1", "usage_rights")}
	results := map[string]*types.ClauseMatchResult{"c1": mkResult("c1", 0.8)}
	term := &types.PreAgreedTerm{
		ID:                 "t1",
		TermCategory:       "Something Unmapped",
		RelatedClauseTypes: []string{"usage_rights"},
	}

	cands := SelectCandidates(term, clauses, results)
	require.Len(t, cands, 1)
	assert.Equal(t, types.ReasonTypeMatch, cands[0].Reason)
}

func TestSelectCandidatesFallbackTypes(t *testing.T) {
	// 没有 exclusivity 条款，但有兜底类型 usage_rights
	clauses := []*types.ClauseBoundary{mkClause("c1", "usage_rights")}
	results := map[string]*types.ClauseMatchResult{"c1": mkResult("c1", 0.8)}
	term := &types.PreAgreedTerm{ID: "t1", TermCategory: "Exclusivity"}

	cands := SelectCandidates(term, clauses, results)
	require.Len(t, cands, 1)
	assert.Equal(t, types.ReasonFallbackMatch, cands[0].Reason)
}

func TestSelectCandidatesKeywordFallback(t *testing.T) {
	// 类目没有任何映射，靠描述和关键词组对上 payment_terms
	clauses := []*types.ClauseBoundary{mkClause("c1", "payment_terms")}
	results := map[string]*types.ClauseMatchResult{"c1": mkResult("c1", 0.8)}
	term := &types.PreAgreedTerm{
		ID:              "t1",
		TermCategory:    "Money Stuff",
		TermDescription: "the fee and invoice schedule for the campaign",
	}

	cands := SelectCandidates(term, clauses, results)
	require.Len(t, cands, 1)
	assert.Equal(t, types.ReasonSemanticFallback, cands[0].Reason)
	assert.Greater(t, cands[0].Score, 0.0)
}

func TestSelectCandidatesTopThree(t *testing.T) {
	var clauses []*types.ClauseBoundary
	results := map[string]*types.ClauseMatchResult{}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		clauses = append(clauses, mkClause(id, "payment_terms"))
		results[id] = mkResult(id, 0.5+float64(i)*0.1)
	}
	term := &types.PreAgreedTerm{ID: "t1", TermCategory: "Payment Terms"}

	cands := SelectCandidates(term, clauses, results)
	require.Len(t, cands, 3)
	assert.Equal(t, "c4", cands[0].Clause.ID) // 0.9 最高
}

func TestSelectCandidatesEmpty(t *testing.T) {
	// 没有库匹配结果的条款不参与；完全无候选返回空
	clauses := []*types.ClauseBoundary{mkClause("c1", "payment_terms")}
	term := &types.PreAgreedTerm{ID: "t1", TermCategory: "Payment Terms"}

	cands := SelectCandidates(term, clauses, map[string]*types.ClauseMatchResult{})
	assert.Empty(t, cands)

	// 毫无关联的类目也返回空
	term2 := &types.PreAgreedTerm{ID: "t2", TermCategory: "Zzz", TermDescription: "zzz"}
	results := map[string]*types.ClauseMatchResult{"c1": mkResult("c1", 0.8)}
	assert.Empty(t, SelectCandidates(term2, clauses, results))
}
