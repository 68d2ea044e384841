package reconcile

import (
	"strings"

	"recon-engine/types"
)

// 身份条款（品牌名/艺人名/代理公司名）走字符串存在性检查，不过 LLM
// 理由：当事方是谁是"有没有"的事实问题，不是语义相似度问题；
// 走 LLM 既浪费钱又可能在大小写/空格差异上误判

// 身份类目的标记词，命中即认为是身份条款
var identityMarkers = []string{
	"brand name", "talent name", "agency name",
	"brand", "talent", "agency", "party name", "party",
}

// IsIdentityTerm 判断一个预定条款是否为身份条款
func IsIdentityTerm(term *types.PreAgreedTerm) bool {
	cat := normalizeText(term.Category())
	for _, m := range identityMarkers {
		if strings.Contains(cat, m) {
			return true
		}
	}
	return false
}

// normalizeText 小写 + 压缩空白
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// MatchIdentity 检查 expectedValue 是否出现在合同文本里
// scopeText: 条款级别的文本（可为空），fullText: 全文兜底
func MatchIdentity(expectedValue, scopeText, fullText string) types.IdentityMatchResult {
	expected := normalizeText(expectedValue)
	if expected == "" || strings.EqualFold(strings.TrimSpace(expectedValue), "N/A") {
		return types.IdentityMatchResult{Matches: false, MatchType: types.IdentityAbsent, Confidence: 0}
	}

	scope := normalizeText(scopeText)
	full := normalizeText(fullText)

	// 1. 精确子串匹配：优先条款范围，其次全文（置信度略降）
	if scope != "" && strings.Contains(scope, expected) {
		return types.IdentityMatchResult{
			Matches: true, MatchType: types.IdentityExact, Confidence: 1.0, FoundValue: expectedValue,
		}
	}
	if strings.Contains(full, expected) {
		conf := 1.0
		if scope != "" {
			conf = 0.95 // 只在全文兜底范围内命中
		}
		return types.IdentityMatchResult{
			Matches: true, MatchType: types.IdentityExact, Confidence: conf, FoundValue: expectedValue,
		}
	}

	// 2. 词级部分匹配：长度>2 的词（跳过冠词），70% 以上出现即算 partial
	words := significantWords(expected)
	if len(words) > 0 {
		hit := 0
		for _, w := range words {
			if strings.Contains(full, w) {
				hit++
			}
		}
		ratio := float64(hit) / float64(len(words))
		if ratio >= 0.7 {
			return types.IdentityMatchResult{
				Matches: true, MatchType: types.IdentityPartial, Confidence: ratio * 0.8,
			}
		}
	}

	return types.IdentityMatchResult{Matches: false, MatchType: types.IdentityAbsent, Confidence: 0}
}

func significantWords(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// RAGForIdentity 身份匹配结果映射到 RAG
// partial 给 amber：词重合不能证明身份正确，要人工看一眼
func RAGForIdentity(m types.IdentityMatchResult, isMandatory bool) string {
	switch m.MatchType {
	case types.IdentityExact, types.IdentityNormalized:
		return types.RAGGreen
	case types.IdentityPartial:
		return types.RAGAmber
	default: // absent
		if isMandatory {
			return types.RAGRed
		}
		return types.RAGAmber
	}
}
