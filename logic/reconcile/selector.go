package reconcile

import (
	"sort"
	"strings"

	"recon-engine/types"
	"recon-engine/vars"
)

// Candidate 一个 (条款, 库匹配结果) 候选对
type Candidate struct {
	Clause      *types.ClauseBoundary
	MatchResult *types.ClauseMatchResult
	Reason      string  // type_match / fallback_match / semantic_fallback
	Score       float64 // 关键词兜底时的重合度
}

// 类目 -> 主条款类型（显式映射）
var categoryPrimaryTypes = map[string][]string{
	"payment terms":         {"payment_terms"},
	"payment":               {"payment_terms"},
	"compensation":          {"payment_terms"},
	"exclusivity":           {"exclusivity"},
	"usage rights":          {"usage_rights"},
	"usage":                 {"usage_rights"},
	"deliverables":          {"deliverables"},
	"content deliverables":  {"deliverables"},
	"term":                  {"term_duration"},
	"term duration":         {"term_duration"},
	"contract term":         {"term_duration"},
	"termination":           {"termination"},
	"approval rights":       {"approval_rights"},
	"approvals":             {"approval_rights"},
	"intellectual property": {"intellectual_property"},
	"ip ownership":          {"intellectual_property"},
	"confidentiality":       {"confidentiality"},
	"indemnification":       {"indemnification"},
	"liability":             {"liability"},
	"morality":              {"morality"},
	"morals clause":         {"morality"},
	"force majeure":         {"force_majeure"},
	"governing law":         {"governing_law"},
}

// 类目 -> 次级条款类型（主映射找不到条款时的兜底）
var categoryFallbackTypes = map[string][]string{
	"payment terms":         {"deliverables", "term_duration"},
	"payment":               {"deliverables", "term_duration"},
	"compensation":          {"deliverables", "term_duration"},
	"exclusivity":           {"usage_rights", "term_duration"},
	"usage rights":          {"intellectual_property", "exclusivity"},
	"usage":                 {"intellectual_property", "exclusivity"},
	"deliverables":          {"approval_rights", "payment_terms"},
	"term":                  {"termination", "exclusivity"},
	"term duration":         {"termination", "exclusivity"},
	"termination":           {"term_duration", "liability"},
	"approval rights":       {"deliverables", "usage_rights"},
	"intellectual property": {"usage_rights", "confidentiality"},
	"confidentiality":       {"intellectual_property"},
	"morality":              {"termination"},
}

// 条款类型 -> 关键词组（最后一层启发式兜底）
var keywordGroups = map[string][]string{
	"payment_terms":         {"payment", "fee", "compensation", "amount", "invoice", "remuneration", "pay"},
	"usage_rights":          {"usage", "use", "media", "channel", "platform", "license", "rights"},
	"deliverables":          {"deliverable", "deliverables", "content", "post", "video", "deliver", "produce"},
	"exclusivity":           {"exclusive", "exclusivity", "competitor", "competing", "category"},
	"approval_rights":       {"approval", "approve", "review", "consent", "sign-off"},
	"intellectual_property": {"intellectual", "property", "copyright", "ownership", "ip"},
	"term_duration":         {"term", "duration", "period", "months", "length"},
	"termination":           {"termination", "terminate", "cancel", "cancellation", "notice"},
	"confidentiality":       {"confidential", "confidentiality", "disclosure", "nda"},
	"morality":              {"morality", "morals", "conduct", "reputation", "disrepute"},
}

// SelectCandidates 为一个预定条款挑选最多 3 个候选条款
// 分层策略：显式类型映射 -> 兜底类型映射 -> 关键词启发式
// 只挑 1 个有风险：抽取可能产出多个同类条款，比对后再由 best-match 定夺
// 没有任何候选的 term 不进 LLM 批次，强制项稍后按缺失处理
func SelectCandidates(term *types.PreAgreedTerm, clauses []*types.ClauseBoundary, resultsByClause map[string]*types.ClauseMatchResult) []Candidate {
	catKey := normalizeText(term.Category())

	// 1. 显式类型匹配：term 自带提示 + 归一化类型 + 类目主映射
	primary := map[string]bool{}
	for _, t := range term.RelatedClauseTypes {
		primary[t] = true
	}
	if term.NormalizedClauseType != "" {
		primary[term.NormalizedClauseType] = true
	}
	for _, t := range categoryPrimaryTypes[catKey] {
		primary[t] = true
	}
	candidates := pickByTypes(clauses, resultsByClause, primary, types.ReasonTypeMatch)

	// 2. 兜底类型匹配
	if len(candidates) == 0 {
		fallback := map[string]bool{}
		for _, t := range categoryFallbackTypes[catKey] {
			fallback[t] = true
		}
		candidates = pickByTypes(clauses, resultsByClause, fallback, types.ReasonFallbackMatch)
	}

	// 3. 关键词启发式：term 的类目+描述与条款类型的关键词组求重合
	if len(candidates) == 0 {
		termText := normalizeText(term.Category() + " " + term.TermDescription)
		for _, clause := range clauses {
			mr, ok := resultsByClause[clause.ID]
			if !ok {
				continue
			}
			group, ok := keywordGroups[clause.ClauseType]
			if !ok {
				continue
			}
			hit := 0
			for _, kw := range group {
				if strings.Contains(termText, kw) {
					hit++
				}
			}
			if hit > 0 {
				candidates = append(candidates, Candidate{
					Clause:      clause,
					MatchResult: mr,
					Reason:      types.ReasonSemanticFallback,
					Score:       float64(hit) / float64(len(group)),
				})
			}
		}
	}

	// 按库匹配置信度降序，截断 top 3
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MatchResult.SimilarityScore > candidates[j].MatchResult.SimilarityScore
	})
	if len(candidates) > vars.MAXCANDIDATE {
		candidates = candidates[:vars.MAXCANDIDATE]
	}
	return candidates
}

func pickByTypes(clauses []*types.ClauseBoundary, resultsByClause map[string]*types.ClauseMatchResult, typeSet map[string]bool, reason string) []Candidate {
	if len(typeSet) == 0 {
		return nil
	}
	var out []Candidate
	for _, clause := range clauses {
		if !typeSet[clause.ClauseType] {
			continue
		}
		mr, ok := resultsByClause[clause.ID]
		if !ok {
			// 没有库匹配结果的条款不参与比对
			continue
		}
		out = append(out, Candidate{Clause: clause, MatchResult: mr, Reason: reason})
	}
	return out
}
