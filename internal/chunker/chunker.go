package chunker

// Chunk is a bounded slice of a file's text, the unit that gets embedded.
// Start is the rune offset of the chunk within the source text.
type Chunk struct {
	Start int
	Text  string
}

// Split cuts text into chunks of at most maxChars characters where adjacent
// chunks overlap by exactly overlap characters (the last chunk may be
// shorter). Splitting is by character count, not lines or sentences, so the
// same input always yields the same chunk boundaries. An overlap >= maxChars
// is clamped to maxChars-1.
func Split(text string, maxChars, overlap int) []Chunk {
	if text == "" || maxChars <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars - 1
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return []Chunk{{Start: 0, Text: text}}
	}

	step := maxChars - overlap
	chunks := make([]Chunk, 0, (len(runes)-overlap+step-1)/step)
	for start := 0; ; start += step {
		end := start + maxChars
		if end >= len(runes) {
			chunks = append(chunks, Chunk{Start: start, Text: string(runes[start:])})
			break
		}
		chunks = append(chunks, Chunk{Start: start, Text: string(runes[start:end])})
	}
	return chunks
}
