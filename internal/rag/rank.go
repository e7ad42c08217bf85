package rag

import "sort"

// lessCandidate 全局排序规则：相似度降序，再按source_id、序号、表名升序
// 跨表合并与单表排序共用同一套规则，保证结果可复现。
func lessCandidate(a, b Candidate) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	if a.SequenceIndex != b.SequenceIndex {
		return a.SequenceIndex < b.SequenceIndex
	}
	return a.Table < b.Table
}

// rankCandidates 原地按全局规则排序
func rankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lessCandidate(candidates[i], candidates[j])
	})
}
