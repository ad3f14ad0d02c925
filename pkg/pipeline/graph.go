// Package pipeline drives the external multi-agent content pipeline for one
// job: it plans the stage graph, executes stages (sequentially or as sibling
// tasks), validates and persists deliverables, and publishes the ordered
// event narrative to the bus.
package pipeline

import (
	"github.com/forgeworks/draftforge/pkg/models"
)

// Stage names.
const (
	StageResearch = "research"
	StageWrite    = "write"
	StageEdit     = "edit"
	StageSocial   = "social"
	StageAudio    = "audio"
	StageVideo    = "video"
)

// Stage is one node of the stage graph.
type Stage struct {
	Name string

	// Produces is the deliverable content type, or "" for stages whose output
	// only feeds later stages.
	Produces models.ContentType

	// ProgressStart and ProgressEnd bound the stage's share of overall job
	// progress. Core stages own fixed bands; media stages split 95-99
	// pro-rata.
	ProgressStart int
	ProgressEnd   int
}

// Graph is the planned stage DAG for one job. Core stages form a strict
// chain; optional stages are independent of each other and all depend on the
// last core stage. The graph is a value, not control flow: adding a content
// type means adding a node here, not branching in the worker.
type Graph struct {
	Core     []Stage
	Optional []Stage

	// MaxParallel bounds how many optional stages run as concurrent siblings.
	MaxParallel int
}

// BuildGraph plans the stage graph for the effective types. The core chain
// research → write → edit always runs (optional stages consume the edited
// draft); edit produces the blog deliverable only when blog was requested.
func BuildGraph(types []models.ContentType, maxParallel int) *Graph {
	if maxParallel < 1 {
		maxParallel = 1
	}

	g := &Graph{MaxParallel: maxParallel}

	editProduces := models.ContentType("")
	if models.ContainsContentType(types, models.ContentTypeBlog) {
		editProduces = models.ContentTypeBlog
	}
	g.Core = []Stage{
		{Name: StageResearch, ProgressStart: 0, ProgressEnd: 30},
		{Name: StageWrite, ProgressStart: 30, ProgressEnd: 70},
		{Name: StageEdit, Produces: editProduces, ProgressStart: 70, ProgressEnd: 95},
	}

	var optional []Stage
	for _, t := range types {
		switch t {
		case models.ContentTypeSocial:
			optional = append(optional, Stage{Name: StageSocial, Produces: t})
		case models.ContentTypeAudio:
			optional = append(optional, Stage{Name: StageAudio, Produces: t})
		case models.ContentTypeVideo:
			optional = append(optional, Stage{Name: StageVideo, Produces: t})
		}
	}

	// Media band 95-99 split pro-rata across the optional stages.
	for i := range optional {
		span := 4.0 / float64(len(optional))
		optional[i].ProgressStart = 95 + int(float64(i)*span)
		optional[i].ProgressEnd = 95 + int(float64(i+1)*span)
	}
	g.Optional = optional

	return g
}

// Levels returns the execution plan as ordered batches: stages within a batch
// may run as concurrent siblings, batches run strictly in order. Core stages
// are always their own batch; optional stages share one batch when
// parallelism allows, otherwise run one per batch.
func (g *Graph) Levels() [][]Stage {
	var levels [][]Stage
	for _, s := range g.Core {
		levels = append(levels, []Stage{s})
	}
	if len(g.Optional) == 0 {
		return levels
	}
	if g.MaxParallel > 1 {
		levels = append(levels, g.Optional)
		return levels
	}
	for _, s := range g.Optional {
		levels = append(levels, []Stage{s})
	}
	return levels
}

// HasMedia reports whether the graph produces audio or video artifacts. Used
// for the subscriber fast-lane hint.
func (g *Graph) HasMedia() bool {
	for _, s := range g.Optional {
		if s.Produces.IsMedia() {
			return true
		}
	}
	return false
}
