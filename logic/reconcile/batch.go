package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"recon-engine/types"
	"recon-engine/vars"
)

// 单次 LLM 调用的墙钟上限，超时按该批失败处理
const llmCallTimeout = 120 * time.Second

// 发给 LLM 的条款正文截断长度
const clauseExcerptLimit = 2000

// 压缩后的比对请求，按固定批量发给 LLM
type compareRequest struct {
	Idx    int           `json:"idx"`
	Term   compareTerm   `json:"term"`
	Clause compareClause `json:"clause"`
}

type compareTerm struct {
	Category      string `json:"category"`
	Description   string `json:"description,omitempty"`
	ExpectedValue string `json:"expected_value"`
	IsMandatory   bool   `json:"is_mandatory"`
}

type compareClause struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// BuildComparisons 把每个 term 的候选摊平成一张全局比对清单，Idx 全局递增
func BuildComparisons(terms []*types.PreAgreedTerm, candidates map[string][]Candidate) []*types.BatchComparison {
	var comps []*types.BatchComparison
	idx := 0
	for _, term := range terms {
		for _, cand := range candidates[term.ID] {
			comps = append(comps, &types.BatchComparison{
				Idx:           idx,
				Term:          term,
				Clause:        cand.Clause,
				MatchResultID: cand.MatchResult.ID,
				MatchReason:   cand.Reason,
				SemanticScore: cand.Score,
			})
			idx++
		}
	}
	return comps
}

// RunBatchComparisons 按 vars.BATCHSIZE 分批调用 LLM，返回 idx -> 结果
// 一批失败只丢那一批的结果（缺的 idx 在返回 map 里就是不存在），不中断整个文档
func RunBatchComparisons(ctx context.Context, chatModel model.ToolCallingChatModel, comps []*types.BatchComparison, policy RetryPolicy) map[int]*types.BatchResult {
	out := make(map[int]*types.BatchResult)
	if len(comps) == 0 {
		return out
	}

	for start := 0; start < len(comps); start += vars.BATCHSIZE {
		end := start + vars.BATCHSIZE
		if end > len(comps) {
			end = len(comps)
		}
		chunk := comps[start:end]

		batchStart := time.Now()
		results, err := runOneBatch(ctx, chatModel, chunk, policy)
		if err != nil {
			fmt.Printf(">>> [Batch] 批次 %d-%d 失败，跳过: %v\n", start, end, err)
			continue
		}
		fmt.Printf(">>> [性能] 批次 %d-%d 比对耗时: %v, 解析出 %d 条结果\n", start, end, time.Since(batchStart), len(results))

		mergeBatchResults(out, chunk, results)
	}
	return out
}

func runOneBatch(ctx context.Context, chatModel model.ToolCallingChatModel, chunk []*types.BatchComparison, policy RetryPolicy) ([]types.BatchResult, error) {
	reqs := make([]compareRequest, 0, len(chunk))
	for _, c := range chunk {
		content := c.Clause.Content
		if len(content) > clauseExcerptLimit {
			content = content[:clauseExcerptLimit]
		}
		reqs = append(reqs, compareRequest{
			Idx: c.Idx,
			Term: compareTerm{
				Category:      c.Term.Category(),
				Description:   c.Term.TermDescription,
				ExpectedValue: c.Term.ExpectedValue,
				IsMandatory:   c.Term.IsMandatory,
			},
			Clause: compareClause{Type: c.Clause.ClauseType, Content: content},
		})
	}
	payload, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}
	prompt := strings.ReplaceAll(vars.COMPARE, "{{.Requests}}", string(payload))

	var resp *schema.Message
	err = policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
		defer cancel()
		var genErr error
		resp, genErr = chatModel.Generate(callCtx, []*schema.Message{schema.UserMessage(prompt)})
		return genErr
	})
	if err != nil {
		return nil, err
	}

	results := ParseBatchResponse(resp.Content)
	if len(results) == 0 {
		// 格式坏掉的批次：留个内容预览方便排查，结果按缺失处理
		return nil, fmt.Errorf("响应无法解析为比对结果, 预览: %s", truncate(resp.Content, 200))
	}
	return results, nil
}

// mergeBatchResults 把一批结果并入全局 map
// LLM 偶尔会把 idx 写成批内相对位置，这里做一次兜底换算
func mergeBatchResults(out map[int]*types.BatchResult, chunk []*types.BatchComparison, results []types.BatchResult) {
	validIdx := make(map[int]bool, len(chunk))
	for _, c := range chunk {
		validIdx[c.Idx] = true
	}

	matched := 0
	for _, r := range results {
		if validIdx[r.Idx] {
			matched++
		}
	}

	if matched == 0 && len(results) == len(chunk) {
		// 一个全局 idx 都对不上但数量正好：按位置对齐
		for i := range results {
			r := results[i]
			r.Idx = chunk[i].Idx
			out[r.Idx] = normalizeResult(&r)
		}
		return
	}

	for i := range results {
		r := results[i]
		if !validIdx[r.Idx] {
			continue // 找不回来的 idx 直接丢，调用方按"无结果"处理
		}
		out[r.Idx] = normalizeResult(&r)
	}
}

// normalizeResult 清洗 severity 等字段
func normalizeResult(r *types.BatchResult) *types.BatchResult {
	r.Severity = strings.ToLower(strings.TrimSpace(r.Severity))
	switch r.Severity {
	case types.SeverityNone, types.SeverityMinor, types.SeverityMajor:
	case "":
		if r.Matches {
			r.Severity = types.SeverityNone
		} else {
			r.Severity = types.SeverityMajor
		}
	default:
		// 未知级别按不匹配的保守口径
		if r.Matches {
			r.Severity = types.SeverityMinor
		} else {
			r.Severity = types.SeverityMajor
		}
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return r
}

// ParseBatchResponse 容忍多种 JSON 形状：
// 裸数组 / {"results":[...]} / {"comparisons":[...]} / 单个结果对象
// 解析不出来返回 nil，调用方不能 panic
func ParseBatchResponse(raw string) []types.BatchResult {
	raw = cleanLLMJSON(raw)

	if arr, ok := sliceJSON(raw, '[', ']'); ok {
		var rs []types.BatchResult
		if err := json.Unmarshal([]byte(arr), &rs); err == nil && len(rs) > 0 {
			return rs
		}
	}

	obj, ok := sliceJSON(raw, '{', '}')
	if !ok {
		return nil
	}

	var wrapper struct {
		Results     []types.BatchResult `json:"results"`
		Comparisons []types.BatchResult `json:"comparisons"`
	}
	if err := json.Unmarshal([]byte(obj), &wrapper); err == nil {
		if len(wrapper.Results) > 0 {
			return wrapper.Results
		}
		if len(wrapper.Comparisons) > 0 {
			return wrapper.Comparisons
		}
	}

	// 单个未分组的结果对象
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &probe); err == nil {
		if _, has := probe["matches"]; has {
			var single types.BatchResult
			if err := json.Unmarshal([]byte(obj), &single); err == nil {
				return []types.BatchResult{single}
			}
		}
	}
	return nil
}

// cleanLLMJSON 去掉 ```json 围栏和首尾空白
func cleanLLMJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

// sliceJSON 截取第一个 open 到最后一个 close 之间的内容
func sliceJSON(raw string, open, close byte) (string, bool) {
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, close)
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
