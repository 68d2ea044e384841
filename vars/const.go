package vars

import (
	"os"
)

// GetEnv 获取环境变量，如果不存在则返回默认值
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

const (
	// 模型名称
	NOMIC   = "nomic-embed-text"
	BGEM3   = "bge-m3"
	QWEN7B  = "qwen2.5:7b"
	QWEN3B  = "qwen2.5:3b"
	GPT4O   = "gpt-4o"
	GPT4OMN = "gpt-4o-mini"

	// Milvus Collection 名称
	CLAUSECOLLECTION  = "clause_chunks_v1"   // 合同条款切片
	LIBRARYCOLLECTION = "clause_library_v1"  // 标准条款库
	ESCLAUSEINDEX     = "clause_chunks_v1"   // ES 条款索引

	// 批量比对参数
	BATCHSIZE    = 50  // 每次 LLM 调用最多比对多少条
	MAXCANDIDATE = 3   // 每个预定条款最多选几个候选条款

	// 重试参数
	RETRYMAX  = 3
	RETRYBASE = 1  // 秒
	RETRYCAP  = 30 // 秒

	// 库匹配置信度阈值
	REVIEWTHRESHOLD = 0.85
)

// 环境变量配置（支持 Docker 部署）
var (
	// OLLAMA
	OLLAMA_PATH = GetEnv("OLLAMA_PATH", "http://localhost:11434")

	// OpenAI（配置了 key 就优先用 OpenAI，否则用本地 Ollama）
	OPENAI_KEY  = GetEnv("OPENAI_API_KEY", "")
	OPENAI_BASE = GetEnv("OPENAI_BASE_URL", "")

	// PG
	PGUSER = GetEnv("PGUSER", "root")
	PGPWD  = GetEnv("PGPWD", "root")
	PGDB   = GetEnv("PGDB", "reconDB")
	PGHOST = GetEnv("PGHOST", "localhost")
	PGPORT = GetEnv("PGPORT", "5432")

	// Milvus
	MILVUSADDR = GetEnv("MILVUSADDR", "127.0.0.1:19530")

	// ES
	ESADDR = GetEnv("ESADDR", "http://localhost:9200")
)

// 提示词
const (
	// NORMALIZE 预定条款类目归一化（一次性批量，不按条逐个调用）
	NORMALIZE = `
You are a contract data normalizer for talent/brand deal contracts.
You receive a JSON array of pre-agreed terms. For EACH term, correct typos and
variants in "term_category" and guess the single best matching clause type.

Allowed clause types:
[payment_terms, exclusivity, usage_rights, deliverables, term_duration,
termination, approval_rights, intellectual_property, confidentiality,
indemnification, liability, morality, force_majeure, governing_law, other]

Input terms:
{{.Terms}}

Return a JSON array, one object per input term, same order:
[{"id": "...", "normalized_term_category": "...", "normalized_clause_type": "..."}]

Output JSON only. No markdown.
`

	// COMPARE 批量条款比对的系统提示词（GREEN/AMBER/RED 判定规则）
	COMPARE = `
You are a contract compliance checker. You receive a JSON array of comparison
requests. Each request pairs a pre-agreed deal term with one extracted
contract clause. For EACH request decide whether the clause satisfies the term.

Decision rubric:
- GREEN  -> matches=true,  severity="none":  the clause fully satisfies the term.
- AMBER  -> matches=true,  severity="minor": the clause partially satisfies the
  term with minor deviations (timing/amount close but not exact, scope slightly
  off, wording differences that do not change intent).
- RED    -> matches=false, severity="major": the clause conflicts with the term,
  or the term's requirement is absent from the clause content.

When "is_mandatory" is true, apply strict interpretation: any material
deviation is RED, not AMBER.
Ignore template placeholders such as [BRAND], [TALENT], [AGENCY], {{PARTY}} —
they are library artifacts, not deviations.

Requests:
{{.Requests}}

Return a JSON array, one object per request:
[{"idx": 0, "matches": true, "severity": "none", "explanation": "...",
  "differences": ["..."], "confidence": 0.95}]

Output JSON only. No markdown.
`

	// CLASSIFY 摄取阶段的条款类型分类（一次性批量）
	CLASSIFY = `
You are a contract clause classifier for talent/brand deal contracts.
You receive a JSON array of clause texts. For EACH clause pick the single best
clause type and a confidence between 0 and 1.

Allowed clause types:
[payment_terms, exclusivity, usage_rights, deliverables, term_duration,
termination, approval_rights, intellectual_property, confidentiality,
indemnification, liability, morality, force_majeure, governing_law, other]

Clauses:
{{.Clauses}}

Return a JSON array, one object per clause, same order:
[{"idx": 0, "clause_type": "payment_terms", "confidence": 0.9}]

Output JSON only. No markdown.
`
)
