package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-engine/types"
)

// fakeChatModel 按脚本顺序吐响应，用于不真调 LLM 的测试
type fakeChatModel struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return schema.AssistantMessage(f.responses[i], nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported in fake")
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestParseBatchResponseShapes(t *testing.T) {
	want := types.BatchResult{Idx: 0, Matches: true, Severity: "none", Explanation: "ok", Confidence: 0.9}

	// 裸数组
	rs := ParseBatchResponse(`[{"idx":0,"matches":true,"severity":"none","explanation":"ok","confidence":0.9}]`)
	require.Len(t, rs, 1)
	assert.Equal(t, want, rs[0])

	// results 包装
	rs = ParseBatchResponse(`{"results":[{"idx":0,"matches":true,"severity":"none","explanation":"ok","confidence":0.9}]}`)
	require.Len(t, rs, 1)
	assert.Equal(t, want, rs[0])

	// comparisons 包装
	rs = ParseBatchResponse(`{"comparisons":[{"idx":0,"matches":true,"severity":"none","explanation":"ok","confidence":0.9}]}`)
	require.Len(t, rs, 1)

	// 单个未分组对象
	rs = ParseBatchResponse(`{"idx":0,"matches":true,"severity":"none","explanation":"ok","confidence":0.9}`)
	require.Len(t, rs, 1)

	// markdown 围栏 + 前后闲话
	rs = ParseBatchResponse("```json\n[{\"idx\":0,\"matches\":true,\"severity\":\"none\",\"explanation\":\"ok\",\"confidence\":0.9}]\n```")
	require.Len(t, rs, 1)
}

func TestParseBatchResponseMalformed(t *testing.T) {
	assert.Nil(t, ParseBatchResponse("this is not json at all"))
	assert.Nil(t, ParseBatchResponse(""))
	assert.Nil(t, ParseBatchResponse(`{"something":"else"}`))
}

func buildTestComparisons(n int) []*types.BatchComparison {
	terms := make([]*types.PreAgreedTerm, 0, n)
	candidates := make(map[string][]Candidate, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("t%d", i)
		term := &types.PreAgreedTerm{ID: id, TermCategory: "Payment Terms", ExpectedValue: "$1", IsMandatory: true}
		terms = append(terms, term)
		cid := fmt.Sprintf("c%d", i)
		candidates[id] = []Candidate{{
			Clause:      mkClause(cid, "payment_terms"),
			MatchResult: mkResult(cid, 0.9),
			Reason:      types.ReasonTypeMatch,
		}}
	}
	return BuildComparisons(terms, candidates)
}

func TestBuildComparisonsGlobalIdx(t *testing.T) {
	comps := buildTestComparisons(3)
	require.Len(t, comps, 3)
	for i, c := range comps {
		assert.Equal(t, i, c.Idx)
	}
}

func TestRunBatchComparisons(t *testing.T) {
	comps := buildTestComparisons(2)
	fake := &fakeChatModel{responses: []string{
		`[{"idx":0,"matches":true,"severity":"none","confidence":0.9},
		  {"idx":1,"matches":false,"severity":"major","confidence":0.8}]`,
	}}

	got := RunBatchComparisons(context.Background(), fake, comps, fastPolicy())
	require.Len(t, got, 2)
	assert.True(t, got[0].Matches)
	assert.False(t, got[1].Matches)
	assert.Equal(t, 1, fake.calls)
}

func TestRunBatchComparisonsMalformedBatch(t *testing.T) {
	// 整批响应坏掉：结果为空 map，不 panic 不报错
	comps := buildTestComparisons(2)
	fake := &fakeChatModel{responses: []string{"oops not json"}}

	got := RunBatchComparisons(context.Background(), fake, comps, fastPolicy())
	assert.Empty(t, got)
}

func TestRunBatchComparisonsPositionalFallback(t *testing.T) {
	// LLM 把 idx 写成了批内相对位置以外的值，但数量对得上 -> 按位置对齐
	comps := buildTestComparisons(2)
	fake := &fakeChatModel{responses: []string{
		`[{"idx":100,"matches":true,"severity":"none","confidence":0.9},
		  {"idx":101,"matches":true,"severity":"minor","confidence":0.8}]`,
	}}

	got := RunBatchComparisons(context.Background(), fake, comps, fastPolicy())
	require.Len(t, got, 2)
	assert.Equal(t, "none", got[0].Severity)
	assert.Equal(t, "minor", got[1].Severity)
}

func TestRunBatchComparisonsRetriesTransient(t *testing.T) {
	comps := buildTestComparisons(1)
	fake := &fakeChatModel{
		errs:      []error{errors.New("429 too many requests")},
		responses: []string{"", `[{"idx":0,"matches":true,"severity":"none","confidence":1}]`},
	}

	got := RunBatchComparisons(context.Background(), fake, comps, fastPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, 2, fake.calls)
}

func TestNormalizeResultSeverity(t *testing.T) {
	r := normalizeResult(&types.BatchResult{Matches: true, Severity: " None "})
	assert.Equal(t, types.SeverityNone, r.Severity)

	r = normalizeResult(&types.BatchResult{Matches: false, Severity: ""})
	assert.Equal(t, types.SeverityMajor, r.Severity)

	r = normalizeResult(&types.BatchResult{Matches: true, Severity: "weird"})
	assert.Equal(t, types.SeverityMinor, r.Severity)

	r = normalizeResult(&types.BatchResult{Matches: true, Severity: "none", Confidence: 1.5})
	assert.Equal(t, 1.0, r.Confidence)
}
