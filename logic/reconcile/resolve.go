package reconcile

import (
	"recon-engine/types"
)

// BestMatch 一个 term 在其所有候选里的最终胜出比对
type BestMatch struct {
	Comparison *types.BatchComparison
	Result     *types.BatchResult
}

// outcomeClass 结论等级：green(2) > amber(1) > red(0)
func outcomeClass(r *types.BatchResult) int {
	if r.Matches && r.Severity == types.SeverityNone {
		return 2
	}
	if r.Matches && r.Severity == types.SeverityMinor {
		return 1
	}
	return 0
}

// ResolveBestMatches 每个 term 从它的候选比对里选出唯一最优结果
// 排序规则严格有序：先按结论等级（合同经常在多处复述义务，
// 找到满足的那一条才是正确答案），同级再比 LLM 自报的置信度
// 该 term 的候选全都没有结果时，map 里就没有这个 term
func ResolveBestMatches(comps []*types.BatchComparison, results map[int]*types.BatchResult) map[string]*BestMatch {
	best := make(map[string]*BestMatch)
	for _, c := range comps {
		r, ok := results[c.Idx]
		if !ok {
			continue // 这个比对没拿到结果（批次失败或 idx 丢失）
		}
		cur, exists := best[c.Term.ID]
		if !exists {
			best[c.Term.ID] = &BestMatch{Comparison: c, Result: r}
			continue
		}
		if better(r, cur.Result) {
			best[c.Term.ID] = &BestMatch{Comparison: c, Result: r}
		}
	}
	return best
}

func better(a, b *types.BatchResult) bool {
	ca, cb := outcomeClass(a), outcomeClass(b)
	if ca != cb {
		return ca > cb
	}
	return a.Confidence > b.Confidence
}
