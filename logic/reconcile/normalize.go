package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"recon-engine/types"
	"recon-engine/vars"
)

// 归一化允许的条款类型枚举
var validClauseTypes = map[string]bool{
	"payment_terms": true, "exclusivity": true, "usage_rights": true,
	"deliverables": true, "term_duration": true, "termination": true,
	"approval_rights": true, "intellectual_property": true,
	"confidentiality": true, "indemnification": true, "liability": true,
	"morality": true, "force_majeure": true, "governing_law": true,
	"other": true,
}

// IsValidClauseType 类型是否在允许的枚举内（摄取分类也用它把关）
func IsValidClauseType(t string) bool {
	return validClauseTypes[t]
}

type normalizeInput struct {
	ID              string `json:"id"`
	TermCategory    string `json:"term_category"`
	TermDescription string `json:"term_description,omitempty"`
}

type normalizeOutput struct {
	ID                     string `json:"id"`
	NormalizedTermCategory string `json:"normalized_term_category"`
	NormalizedClauseType   string `json:"normalized_clause_type"`
}

// NormalizeTerms 一次批量调用修正 term 类目里的错别字/变体并猜一个条款类型
// 任何失败（网络/解析/形状不对）都降级返回原始 terms，归一化失败绝不中断核对
func NormalizeTerms(ctx context.Context, chatModel model.ToolCallingChatModel, terms []*types.PreAgreedTerm, policy RetryPolicy) []*types.PreAgreedTerm {
	if len(terms) == 0 {
		return terms
	}

	inputs := make([]normalizeInput, 0, len(terms))
	for _, t := range terms {
		inputs = append(inputs, normalizeInput{
			ID:              t.ID,
			TermCategory:    t.TermCategory,
			TermDescription: t.TermDescription,
		})
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		fmt.Printf(">>> [Normalize] 输入序列化失败, 用原始 terms 继续: %v\n", err)
		return terms
	}
	prompt := strings.ReplaceAll(vars.NORMALIZE, "{{.Terms}}", string(payload))

	var resp *schema.Message
	err = policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
		defer cancel()
		var genErr error
		resp, genErr = chatModel.Generate(callCtx, []*schema.Message{schema.UserMessage(prompt)})
		return genErr
	})
	if err != nil {
		fmt.Printf(">>> [Normalize] LLM 调用失败, 用原始 terms 继续: %v\n", err)
		return terms
	}

	raw := cleanLLMJSON(resp.Content)
	arr, ok := sliceJSON(raw, '[', ']')
	if !ok {
		fmt.Printf(">>> [Normalize] 响应里找不到 JSON 数组, 用原始 terms 继续, 预览: %s\n", truncate(resp.Content, 200))
		return terms
	}

	var outputs []normalizeOutput
	if err := json.Unmarshal([]byte(arr), &outputs); err != nil {
		fmt.Printf(">>> [Normalize] JSON 解析失败, 用原始 terms 继续: %v\n", err)
		return terms
	}

	byID := make(map[string]normalizeOutput, len(outputs))
	for _, o := range outputs {
		byID[o.ID] = o
	}
	for _, t := range terms {
		o, ok := byID[t.ID]
		if !ok {
			continue
		}
		if o.NormalizedTermCategory != "" {
			t.NormalizedTermCategory = o.NormalizedTermCategory
		}
		if validClauseTypes[o.NormalizedClauseType] {
			t.NormalizedClauseType = o.NormalizedClauseType
		}
	}
	return terms
}
