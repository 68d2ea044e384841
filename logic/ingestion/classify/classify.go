package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"recon-engine/logic/reconcile"
	"recon-engine/vars"
)

const (
	llmCallTimeout = 120 * time.Second
	clauseTextCap  = 2000 // 分类不需要全文，截断省 token
)

type classifyInput struct {
	Idx  int    `json:"idx"`
	Text string `json:"text"`
}

// TypeResult 单个条款的分类结论
type TypeResult struct {
	Idx        int     `json:"idx"`
	ClauseType string  `json:"clause_type"`
	Confidence float64 `json:"confidence"`
}

// ClassifyClauses 一次批量调用给切分出的条款打类型
// 失败降级：所有条款标成 other/0，摄取流程继续
func ClassifyClauses(ctx context.Context, chatModel model.ToolCallingChatModel, chunks []*schema.Document, policy reconcile.RetryPolicy) []TypeResult {
	fallback := make([]TypeResult, len(chunks))
	for i := range fallback {
		fallback[i] = TypeResult{Idx: i, ClauseType: "other", Confidence: 0}
	}
	if len(chunks) == 0 {
		return fallback
	}

	inputs := make([]classifyInput, 0, len(chunks))
	for i, chunk := range chunks {
		text := chunk.Content
		if len(text) > clauseTextCap {
			text = text[:clauseTextCap]
		}
		inputs = append(inputs, classifyInput{Idx: i, Text: text})
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		fmt.Printf(">>> [Classify] 输入序列化失败, 全部标 other: %v\n", err)
		return fallback
	}
	prompt := strings.ReplaceAll(vars.CLASSIFY, "{{.Clauses}}", string(payload))

	var resp *schema.Message
	err = policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
		defer cancel()
		var genErr error
		resp, genErr = chatModel.Generate(callCtx, []*schema.Message{schema.UserMessage(prompt)})
		return genErr
	})
	if err != nil {
		fmt.Printf(">>> [Classify] LLM 调用失败, 全部标 other: %v\n", err)
		return fallback
	}

	jsonStr := strings.TrimSpace(resp.Content)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")
	start := strings.Index(jsonStr, "[")
	end := strings.LastIndex(jsonStr, "]")
	if start < 0 || end <= start {
		fmt.Printf(">>> [Classify] 响应里找不到 JSON 数组, 全部标 other\n")
		return fallback
	}

	var outputs []TypeResult
	if err := json.Unmarshal([]byte(jsonStr[start:end+1]), &outputs); err != nil {
		fmt.Printf(">>> [Classify] JSON 解析失败, 全部标 other: %v\n", err)
		return fallback
	}

	for _, o := range outputs {
		if o.Idx < 0 || o.Idx >= len(fallback) {
			continue
		}
		if !reconcile.IsValidClauseType(o.ClauseType) {
			continue // 枚举外的类型不要，保持 other
		}
		conf := o.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		fallback[o.Idx] = TypeResult{Idx: o.Idx, ClauseType: o.ClauseType, Confidence: conf}
	}
	return fallback
}
