package reconcile

import (
	"recon-engine/types"
	"recon-engine/vars"
)

// 纯函数，无 IO，方便单测

// CalculateTermRAG 单条比对结果 -> RAG
func CalculateTermRAG(r *types.BatchResult) string {
	if r == nil {
		return types.RAGRed
	}
	if r.Matches && r.Severity == types.SeverityNone {
		return types.RAGGreen
	}
	if r.Matches && r.Severity == types.SeverityMinor {
		return types.RAGAmber
	}
	return types.RAGRed
}

// TermOutcome 条款级聚合的输入：一个 term 的 RAG 结论 + 是否强制
type TermOutcome struct {
	RAG         string
	IsMandatory bool
}

// CalculateClauseRAG 聚合一个条款上的全部 PAT 比对
// 规则：
//   - 强制 term 红 -> 整条红
//   - 非强制 term 红 -> 只降到 amber（可见但不拦路）
//   - 全绿才是绿，其余 amber
func CalculateClauseRAG(outcomes []TermOutcome) string {
	if len(outcomes) == 0 {
		return types.RAGAmber
	}
	allGreen := true
	for _, o := range outcomes {
		if o.RAG == types.RAGRed && o.IsMandatory {
			return types.RAGRed
		}
		if o.RAG != types.RAGGreen {
			allGreen = false
		}
	}
	if allGreen {
		return types.RAGGreen
	}
	return types.RAGAmber
}

// CalculateFinalRAG 综合 PAT 比对与条款库风险
// 任一为红即红（单边否决），都绿才绿，其余 amber
func CalculateFinalRAG(ragParsing, ragRisk string) string {
	if ragParsing == types.RAGRed || ragRisk == types.RAGRed {
		return types.RAGRed
	}
	if ragParsing == types.RAGGreen && ragRisk == types.RAGGreen {
		return types.RAGGreen
	}
	return types.RAGAmber
}

// 人工复核优先级
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// CalculateReviewPriority 库匹配置信度 -> 复核优先级，不需要复核返回空串
func CalculateReviewPriority(similarityScore float64) string {
	switch {
	case similarityScore < 0.5:
		return PriorityCritical
	case similarityScore < 0.6:
		return PriorityHigh
	case similarityScore < 0.7:
		return PriorityMedium
	case similarityScore < vars.REVIEWTHRESHOLD:
		return PriorityLow
	default:
		return ""
	}
}

// NeedsReview 低于库匹配阈值的条款进人工队列，长期用真实变体扩充条款库
func NeedsReview(similarityScore float64) bool {
	return similarityScore < vars.REVIEWTHRESHOLD
}
