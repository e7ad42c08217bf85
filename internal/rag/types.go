package rag

import (
	"fmt"
	"strconv"
	"strings"
)

// CandidateID 候选项的稳定标识：逻辑表名 + 行ID
// 用于suggestion二次调用时按ID回选，跨调用不依赖任何缓存。
type CandidateID string

// MakeCandidateID 构造候选ID
func MakeCandidateID(table string, rowID int64) CandidateID {
	return CandidateID(fmt.Sprintf("%s:%d", table, rowID))
}

// Parse 拆出表名与行ID
func (id CandidateID) Parse() (table string, rowID int64, err error) {
	idx := strings.LastIndex(string(id), ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("malformed candidate id: %q", id)
	}
	rowID, err = strconv.ParseInt(string(id)[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed candidate id: %q", id)
	}
	return string(id)[:idx], rowID, nil
}

// Candidate 一次检索中某个chunk的命中结果
// 仅在单次检索调用内存在，从不持久化。
type Candidate struct {
	ID            CandidateID `json:"id"`
	Table         string      `json:"table"`
	RowID         int64       `json:"-"`
	Content       string      `json:"content"`
	SourceID      string      `json:"source_id"`
	Position      int         `json:"position"`
	SequenceIndex int         `json:"sequence_index"`
	Similarity    float64     `json:"similarity"`
}

// SuggestionItem SuggestionSet中的一项，携带稳定ID供回选
type SuggestionItem struct {
	ID         CandidateID `json:"id"`
	Table      string      `json:"table"`
	SourceID   string      `json:"source_id"`
	Position   int         `json:"position"`
	Similarity float64     `json:"similarity"`
	Preview    string      `json:"preview"`
}

// SuggestionSet 待用户确认的候选集合
type SuggestionSet struct {
	TotalAvailable int              `json:"total_available"`
	Items          []SuggestionItem `json:"items"`
}

// RetrievalRequest 一次检索请求，调用方持有且请求期内不可变
type RetrievalRequest struct {
	RequestID           string
	Query               string
	Tables              []string
	TopK                int
	SimilarityThreshold float64
	SelectedIDs         []CandidateID
	WantSuggestions     bool
}

// Provenance 答案出处，与候选一一对应
type Provenance struct {
	SourceID   string  `json:"source_id"`
	Position   int     `json:"position"`
	Similarity float64 `json:"similarity"`
	Preview    string  `json:"content_preview"`
}

// AnswerResult 最终答案与出处
type AnswerResult struct {
	Answer        string       `json:"answer"`
	Sources       []Provenance `json:"sources"`
	SkippedTables []string     `json:"skipped_tables,omitempty"`
}

// OutcomeKind 检索结果的两种形态
type OutcomeKind string

const (
	OutcomeSuggestions OutcomeKind = "suggestions"
	OutcomeAnswer      OutcomeKind = "answer"
)

// SearchOutcome 检索结果的带标签联合：建议集或直接答案，二选一
// 显式判别，不依赖可选字段是否存在。
type SearchOutcome struct {
	Kind          OutcomeKind    `json:"kind"`
	Suggestions   *SuggestionSet `json:"suggestions,omitempty"`
	Answer        *AnswerResult  `json:"answer,omitempty"`
	SkippedTables []string       `json:"skipped_tables,omitempty"`
}

// SourceDocument 待摄取的一个内容单元（文件解析由外部完成）
type SourceDocument struct {
	SourceID string
	Position int
	Text     string
}

// IngestReport 摄取结果统计
// 单个batch失败只影响该batch，计数反映部分成功。
type IngestReport struct {
	Attempted int      `json:"attempted"`
	Embedded  int      `json:"embedded"`
	Inserted  int      `json:"inserted"`
	Skipped   int      `json:"skipped"`
	Failures  []string `json:"failures,omitempty"`
}
