package pipeline

// Chunk size tiers for streaming textual content. Small payloads stream in
// fine chunks for responsive UIs; large payloads use coarser chunks to bound
// event count.
const (
	smallPayloadLimit  = 2000
	mediumPayloadLimit = 5000

	smallChunkSize  = 200
	mediumChunkSize = 500
	largeChunkSize  = 1000
)

// Chunk is one slice of a streamed artifact.
type Chunk struct {
	Text     string
	Progress int // percent of the artifact streamed after this chunk
}

// chunkSize selects the chunk size tier for a payload length.
func chunkSize(total int) int {
	switch {
	case total < smallPayloadLimit:
		return smallChunkSize
	case total <= mediumPayloadLimit:
		return mediumChunkSize
	default:
		return largeChunkSize
	}
}

// SplitChunks slices content into adaptive chunks. Splitting is by byte
// offset; content is produced by the pipeline in ASCII-safe markdown, and
// clients reassemble by concatenation so a split inside a rune still
// round-trips.
func SplitChunks(content string) []Chunk {
	total := len(content)
	if total == 0 {
		return nil
	}

	size := chunkSize(total)
	chunks := make([]Chunk, 0, total/size+1)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{
			Text:     content[start:end],
			Progress: end * 100 / total,
		})
	}
	return chunks
}
