package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recon-engine/types"
)

func TestMatchIdentityExact(t *testing.T) {
	full := "This agreement is made between Nike Inc. and the Talent."

	got := MatchIdentity("Nike Inc.", "", full)
	assert.True(t, got.Matches)
	assert.Equal(t, types.IdentityExact, got.MatchType)
	assert.Equal(t, 1.0, got.Confidence)

	// 大小写/空格差异不影响
	got = MatchIdentity("NIKE  inc.", "", full)
	assert.True(t, got.Matches)
	assert.Equal(t, types.IdentityExact, got.MatchType)
}

func TestMatchIdentityScopeFallback(t *testing.T) {
	scope := "Payment shall be made within 30 days."
	full := "Brand: Nike Inc. Payment shall be made within 30 days."

	// 条款范围没命中、全文兜底命中时置信度降到 0.95
	got := MatchIdentity("Nike Inc.", scope, full)
	assert.True(t, got.Matches)
	assert.Equal(t, types.IdentityExact, got.MatchType)
	assert.Equal(t, 0.95, got.Confidence)
}

func TestMatchIdentityPartial(t *testing.T) {
	full := "between Acme Media Holdings and the undersigned talent"

	// 词序不同，精确子串不中，但词全部命中 -> partial, 1.0*0.8
	got := MatchIdentity("Holdings Acme", "", full)
	assert.True(t, got.Matches)
	assert.Equal(t, types.IdentityPartial, got.MatchType)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	// 3 个有效词只命中 2 个: 2/3 < 0.7 -> absent
	got = MatchIdentity("Acme Holdings Group", "", full)
	assert.False(t, got.Matches)
	assert.Equal(t, types.IdentityAbsent, got.MatchType)
}

func TestMatchIdentityAbsent(t *testing.T) {
	full := "between Adidas AG and the undersigned talent"

	got := MatchIdentity("Nike", "", full)
	assert.False(t, got.Matches)
	assert.Equal(t, types.IdentityAbsent, got.MatchType)
	assert.Equal(t, 0.0, got.Confidence)

	// 空值和 N/A 直接 absent
	got = MatchIdentity("", "", full)
	assert.Equal(t, types.IdentityAbsent, got.MatchType)
	got = MatchIdentity("N/A", "", full)
	assert.Equal(t, types.IdentityAbsent, got.MatchType)
}

func TestRAGForIdentity(t *testing.T) {
	exact := types.IdentityMatchResult{Matches: true, MatchType: types.IdentityExact}
	partial := types.IdentityMatchResult{Matches: true, MatchType: types.IdentityPartial}
	absent := types.IdentityMatchResult{Matches: false, MatchType: types.IdentityAbsent}

	assert.Equal(t, types.RAGGreen, RAGForIdentity(exact, true))
	assert.Equal(t, types.RAGAmber, RAGForIdentity(partial, true))
	// absent: 强制 -> red，非强制 -> amber
	assert.Equal(t, types.RAGRed, RAGForIdentity(absent, true))
	assert.Equal(t, types.RAGAmber, RAGForIdentity(absent, false))
}

func TestIsIdentityTerm(t *testing.T) {
	assert.True(t, IsIdentityTerm(&types.PreAgreedTerm{TermCategory: "Brand Name"}))
	assert.True(t, IsIdentityTerm(&types.PreAgreedTerm{TermCategory: "talent name"}))
	assert.True(t, IsIdentityTerm(&types.PreAgreedTerm{
		TermCategory:           "Talnt Nme",
		NormalizedTermCategory: "Talent Name",
	}))
	assert.False(t, IsIdentityTerm(&types.PreAgreedTerm{TermCategory: "Payment Terms"}))
	assert.False(t, IsIdentityTerm(&types.PreAgreedTerm{TermCategory: "Exclusivity"}))
}
