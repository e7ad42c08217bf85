package rag

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankCandidates_TieBreakChain(t *testing.T) {
	candidates := []Candidate{
		{Table: "b", SourceID: "s1", SequenceIndex: 0, Similarity: 0.5},
		{Table: "a", SourceID: "s1", SequenceIndex: 0, Similarity: 0.5},
		{Table: "a", SourceID: "s1", SequenceIndex: 2, Similarity: 0.5},
		{Table: "a", SourceID: "s0", SequenceIndex: 9, Similarity: 0.5},
		{Table: "a", SourceID: "s9", SequenceIndex: 0, Similarity: 0.9},
	}
	rankCandidates(candidates)

	assert.Equal(t, 0.9, candidates[0].Similarity)
	assert.Equal(t, "s0", candidates[1].SourceID)
	assert.Equal(t, "a", candidates[2].Table)
	assert.Equal(t, 0, candidates[2].SequenceIndex)
	assert.Equal(t, "b", candidates[3].Table)
	assert.Equal(t, 2, candidates[4].SequenceIndex)
}

func TestRankCandidates_DeterministicAcrossShuffles(t *testing.T) {
	base := []Candidate{
		{Table: "a", SourceID: "x", SequenceIndex: 1, Similarity: 0.7},
		{Table: "b", SourceID: "x", SequenceIndex: 1, Similarity: 0.7},
		{Table: "a", SourceID: "y", SequenceIndex: 0, Similarity: 0.7},
		{Table: "a", SourceID: "x", SequenceIndex: 0, Similarity: 0.3},
	}
	want := append([]Candidate(nil), base...)
	rankCandidates(want)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]Candidate(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		rankCandidates(shuffled)
		assert.Equal(t, want, shuffled)
	}
}
