package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"recon-engine/types"
)

func TestNormalizeTerms(t *testing.T) {
	terms := []*types.PreAgreedTerm{
		{ID: "t1", TermCategory: "Paymnt Trems"},
		{ID: "t2", TermCategory: "Exclusivity"},
	}
	fake := &fakeChatModel{responses: []string{`[
		{"id":"t1","normalized_term_category":"Payment Terms","normalized_clause_type":"payment_terms"},
		{"id":"t2","normalized_term_category":"Exclusivity","normalized_clause_type":"exclusivity"}
	]`}}

	got := NormalizeTerms(context.Background(), fake, terms, fastPolicy())
	assert.Equal(t, "Payment Terms", got[0].NormalizedTermCategory)
	assert.Equal(t, "payment_terms", got[0].NormalizedClauseType)
	assert.Equal(t, "exclusivity", got[1].NormalizedClauseType)
}

func TestNormalizeTermsRejectsUnknownClauseType(t *testing.T) {
	terms := []*types.PreAgreedTerm{{ID: "t1", TermCategory: "Payment"}}
	fake := &fakeChatModel{responses: []string{
		`[{"id":"t1","normalized_term_category":"Payment Terms","normalized_clause_type":"made_up_type"}]`,
	}}

	got := NormalizeTerms(context.Background(), fake, terms, fastPolicy())
	assert.Equal(t, "Payment Terms", got[0].NormalizedTermCategory)
	assert.Equal(t, "", got[0].NormalizedClauseType) // 枚举外的类型不要
}

// 归一化失败绝不中断核对：原样返回
func TestNormalizeTermsDegradesGracefully(t *testing.T) {
	terms := []*types.PreAgreedTerm{{ID: "t1", TermCategory: "Payment"}}

	// LLM 报错（非瞬时，不重试）
	fake := &fakeChatModel{errs: []error{errors.New("401 unauthorized"), errors.New("401 unauthorized")}}
	got := NormalizeTerms(context.Background(), fake, terms, fastPolicy())
	assert.Equal(t, "", got[0].NormalizedTermCategory)
	assert.Equal(t, 1, fake.calls)

	// 响应不是 JSON
	fake = &fakeChatModel{responses: []string{"sorry, I cannot do that"}}
	got = NormalizeTerms(context.Background(), fake, terms, fastPolicy())
	assert.Equal(t, "", got[0].NormalizedTermCategory)

	// 空列表直接返回
	assert.Empty(t, NormalizeTerms(context.Background(), fake, nil, fastPolicy()))
}
