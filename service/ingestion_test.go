package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recon-engine/storage/milvus"
	"recon-engine/types"
)

func TestLibraryRisk(t *testing.T) {
	cases := []struct {
		name  string
		match milvus.LibraryMatch
		want  string
	}{
		{"高相似度绿模板", milvus.LibraryMatch{Score: 0.92, RiskHint: types.RAGGreen}, types.RAGGreen},
		{"刚好到绿阈值", milvus.LibraryMatch{Score: 0.85, RiskHint: types.RAGGreen}, types.RAGGreen},
		{"中等相似度", milvus.LibraryMatch{Score: 0.7, RiskHint: types.RAGGreen}, types.RAGAmber},
		{"低相似度", milvus.LibraryMatch{Score: 0.3, RiskHint: types.RAGGreen}, types.RAGRed},
		{"红模板一票否决", milvus.LibraryMatch{Score: 0.99, RiskHint: types.RAGRed}, types.RAGRed},
		{"amber 模板压住高相似度", milvus.LibraryMatch{Score: 0.95, RiskHint: types.RAGAmber}, types.RAGAmber},
		{"amber 模板中等相似度", milvus.LibraryMatch{Score: 0.7, RiskHint: types.RAGAmber}, types.RAGAmber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, libraryRisk(&tc.match))
		})
	}
}
