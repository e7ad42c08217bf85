package rag

import (
	"context"
	"fmt"
	"strings"
)

// NoInformationAnswer 无候选时的固定回复，不经过生成模型
const NoInformationAnswer = "Tôi không tìm thấy thông tin này trong tài liệu"

const answerPromptTemplate = `Bạn là một trợ lý AI thông minh. Hãy trả lời câu hỏi dựa trên các đoạn văn bản được cung cấp bên dưới.

Context (các đoạn văn bản liên quan):
%s

Câu hỏi: %s

Hướng dẫn:
- Chỉ trả lời dựa trên thông tin có trong context
- Nếu không tìm thấy thông tin trong context, hãy nói rõ "Tôi không tìm thấy thông tin này trong tài liệu"
- Trả lời bằng tiếng Việt nếu câu hỏi là tiếng Việt
- Trả lời ngắn gọn, chính xác và dễ hiểu

Câu trả lời:`

// Synthesizer 基于候选上下文合成答案并附带出处
type Synthesizer struct {
	generator     Generator
	previewLength int
}

// NewSynthesizer 创建合成器，previewLength控制出处预览截断长度
func NewSynthesizer(generator Generator, previewLength int) *Synthesizer {
	if previewLength <= 0 {
		previewLength = 200
	}
	return &Synthesizer{generator: generator, previewLength: previewLength}
}

// Synthesize 合成答案
// 候选为空时直接返回固定回复，绝不调用生成模型；
// 出处与传入候选一一对应，顺序保持不变。
func (s *Synthesizer) Synthesize(ctx context.Context, query string, candidates []Candidate) (*AnswerResult, error) {
	if len(candidates) == 0 {
		return &AnswerResult{Answer: NoInformationAnswer, Sources: []Provenance{}}, nil
	}

	contextLines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		contextLines = append(contextLines,
			fmt.Sprintf("[%s, trang %d]: %s", c.SourceID, c.Position, c.Content))
	}
	prompt := fmt.Sprintf(answerPromptTemplate, strings.Join(contextLines, "\n\n"), query)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	sources := make([]Provenance, 0, len(candidates))
	for _, c := range candidates {
		sources = append(sources, Provenance{
			SourceID:   c.SourceID,
			Position:   c.Position,
			Similarity: c.Similarity,
			Preview:    truncatePreview(c.Content, s.previewLength),
		})
	}
	return &AnswerResult{Answer: answer, Sources: sources}, nil
}

// truncatePreview 按rune截断并加省略号，避免截断多字节字符
func truncatePreview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
