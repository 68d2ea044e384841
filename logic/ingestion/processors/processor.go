package processors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B-\x0C\x0E-\x1F\x7F]`)

// CleanText 清洗单段条款文本
// PDF 抽取常见问题：Null 字节、控制字符、连续空白
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = controlChars.ReplaceAllString(text, "")

	// 移除无效的 UTF-8 字符
	if !utf8.ValidString(text) {
		v := make([]rune, 0, len(text))
		for i, r := range text {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(text[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		text = string(v)
	}

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Processor 清洗切分结果，丢掉清洗后为空的块，否则 Embedding 会报错
func Processor(ctx context.Context, src []*schema.Document) ([]*schema.Document, error) {
	var cleanDocs []*schema.Document
	for _, doc := range src {
		content := CleanText(doc.Content)
		if content == "" {
			fmt.Println(">>> [Processor] 跳过空 chunk")
			continue
		}
		doc.Content = content
		cleanDocs = append(cleanDocs, doc)
	}
	return cleanDocs, nil
}
