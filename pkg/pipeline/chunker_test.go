package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSizeTiers(t *testing.T) {
	assert.Equal(t, smallChunkSize, chunkSize(100))
	assert.Equal(t, smallChunkSize, chunkSize(1999))
	assert.Equal(t, mediumChunkSize, chunkSize(2000))
	assert.Equal(t, mediumChunkSize, chunkSize(5000))
	assert.Equal(t, largeChunkSize, chunkSize(5001))
}

func TestSplitChunks(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, SplitChunks(""))
	})

	t.Run("single short chunk", func(t *testing.T) {
		chunks := SplitChunks("hello")
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello", chunks[0].Text)
		assert.Equal(t, 100, chunks[0].Progress)
	})

	t.Run("reassembles and ends at 100", func(t *testing.T) {
		content := strings.Repeat("a", 2500)
		chunks := SplitChunks(content)
		require.Len(t, chunks, 5)

		var rebuilt strings.Builder
		last := 0
		for _, c := range chunks {
			rebuilt.WriteString(c.Text)
			assert.GreaterOrEqual(t, c.Progress, last, "progress is monotonic")
			last = c.Progress
		}
		assert.Equal(t, content, rebuilt.String())
		assert.Equal(t, 100, chunks[len(chunks)-1].Progress)
	})

	t.Run("large payload uses coarse chunks", func(t *testing.T) {
		chunks := SplitChunks(strings.Repeat("a", 10000))
		require.Len(t, chunks, 10)
		assert.Len(t, chunks[0].Text, largeChunkSize)
	})
}
