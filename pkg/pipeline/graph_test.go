package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/models"
)

func TestBuildGraphBlogOnly(t *testing.T) {
	g := BuildGraph([]models.ContentType{models.ContentTypeBlog}, 1)

	require.Len(t, g.Core, 3)
	assert.Equal(t, StageResearch, g.Core[0].Name)
	assert.Equal(t, StageWrite, g.Core[1].Name)
	assert.Equal(t, StageEdit, g.Core[2].Name)
	assert.Equal(t, models.ContentTypeBlog, g.Core[2].Produces)
	assert.Empty(t, g.Optional)
	assert.False(t, g.HasMedia())

	levels := g.Levels()
	require.Len(t, levels, 3)
	for _, level := range levels {
		assert.Len(t, level, 1, "core stages never share a batch")
	}
}

func TestBuildGraphCoreChainAlwaysRuns(t *testing.T) {
	// Social-only still needs the research/write/edit chain to feed from;
	// edit just produces no deliverable.
	g := BuildGraph([]models.ContentType{models.ContentTypeSocial}, 1)

	require.Len(t, g.Core, 3)
	assert.Equal(t, models.ContentType(""), g.Core[2].Produces)
	require.Len(t, g.Optional, 1)
	assert.Equal(t, StageSocial, g.Optional[0].Name)
}

func TestBuildGraphProgressBands(t *testing.T) {
	g := BuildGraph([]models.ContentType{
		models.ContentTypeBlog, models.ContentTypeAudio, models.ContentTypeVideo,
	}, 4)

	assert.Equal(t, 0, g.Core[0].ProgressStart)
	assert.Equal(t, 30, g.Core[0].ProgressEnd)
	assert.Equal(t, 70, g.Core[2].ProgressStart)
	assert.Equal(t, 95, g.Core[2].ProgressEnd)

	// Two optional stages split the 95-99 band.
	require.Len(t, g.Optional, 2)
	assert.Equal(t, 95, g.Optional[0].ProgressStart)
	assert.Equal(t, 97, g.Optional[0].ProgressEnd)
	assert.Equal(t, 97, g.Optional[1].ProgressStart)
	assert.Equal(t, 99, g.Optional[1].ProgressEnd)
	assert.True(t, g.HasMedia())
}

func TestGraphLevelsParallelism(t *testing.T) {
	types := []models.ContentType{
		models.ContentTypeBlog, models.ContentTypeSocial, models.ContentTypeAudio,
	}

	t.Run("siblings share a batch when allowed", func(t *testing.T) {
		g := BuildGraph(types, 4)
		levels := g.Levels()
		require.Len(t, levels, 4)
		assert.Len(t, levels[3], 2)
	})

	t.Run("sequential when parallelism is 1", func(t *testing.T) {
		g := BuildGraph(types, 1)
		levels := g.Levels()
		require.Len(t, levels, 5)
		for _, level := range levels {
			assert.Len(t, level, 1)
		}
	})
}
