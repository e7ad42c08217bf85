package rag

// Chunker 固定窗口滑动切块器，按rune计数，与存储格式无关
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker 创建切块器，要求 0 <= overlap < chunkSize
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Split 把文本切成带序号的块
// 窗口步长为 chunkSize-overlap，末块可以不足一个窗口；
// 空串返回nil。切块不做任何语义清洗，原文原样进块。
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap
	var chunks []Chunk
	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Text:          string(runes[start:end]),
			SequenceIndex: seq,
			StartRune:     start,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Scan 返回惰性遍历器，逐块产出而不一次性物化全部结果
// 与Split产出完全相同的块序列，适合超长文本。
func (c *Chunker) Scan(text string) func() (Chunk, bool) {
	runes := []rune(text)
	step := c.chunkSize - c.overlap
	start, seq := 0, 0
	done := len(runes) == 0
	return func() (Chunk, bool) {
		if done {
			return Chunk{}, false
		}
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := Chunk{
			Text:          string(runes[start:end]),
			SequenceIndex: seq,
			StartRune:     start,
		}
		if end == len(runes) {
			done = true
		}
		start += step
		seq++
		return chunk, true
	}
}

// Chunk 切块结果：文本加上源内序号与起始rune偏移
type Chunk struct {
	Text          string
	SequenceIndex int
	StartRune     int
}
