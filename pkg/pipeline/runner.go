package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forgeworks/draftforge/pkg/models"
)

// ErrPipeline wraps failures of the external pipeline endpoint.
var ErrPipeline = errors.New("pipeline error")

// StageRequest is the input contract for one stage execution.
type StageRequest struct {
	JobID       string             `json:"job_id"`
	Stage       string             `json:"stage"`
	Topic       string             `json:"topic"`
	Model       string             `json:"model"`
	ContentType models.ContentType `json:"content_type,omitempty"`

	// Inputs carries prior stage outputs keyed by stage name.
	Inputs map[string]string `json:"inputs,omitempty"`

	// Repair marks a single retry after a structural validation failure.
	Repair bool `json:"repair,omitempty"`
}

// StageResult is one stage's output. Textual stages fill Content; media
// stages fill AssetURI.
type StageResult struct {
	Content  string `json:"content,omitempty"`
	AssetURI string `json:"asset_uri,omitempty"`
}

// Runner executes a single pipeline stage. The orchestrator behind it is an
// external collaborator; the adapter only sees stage-boundary results and
// chunks post-hoc.
type Runner interface {
	RunStage(ctx context.Context, req StageRequest) (*StageResult, error)
}

// HTTPRunner invokes the external pipeline over its HTTP stage API.
type HTTPRunner struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRunner creates a runner against the pipeline base URL. Per-stage
// deadlines come from the caller's context; the client timeout is a backstop.
func NewHTTPRunner(baseURL string) *HTTPRunner {
	return &HTTPRunner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// RunStage posts the stage request and decodes the result.
func (r *HTTPRunner) RunStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode stage request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/stages/%s", r.baseURL, req.Stage)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create stage request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		// Keep the transport error in the chain: the adapter classifies
		// context.DeadlineExceeded as a stage timeout.
		return nil, fmt.Errorf("%w: stage %s: %w", ErrPipeline, req.Stage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: stage %s returned HTTP %d: %s", ErrPipeline, req.Stage, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result StageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode stage %s response: %w", ErrPipeline, req.Stage, err)
	}
	return &result, nil
}

// StubRunner produces deterministic content without an external pipeline.
// Used when MODEL_ENDPOINT is unset (local development) and throughout the
// test suite: identical requests yield identical output, which the cache
// round-trip scenarios depend on.
type StubRunner struct {
	// Delay simulates stage latency. Zero in tests.
	Delay time.Duration
}

// RunStage synthesizes a plausible deliverable for the stage.
func (r *StubRunner) RunStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	seed := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Topic+"|"+req.Model)))[:12]

	switch req.Stage {
	case StageResearch:
		return &StageResult{Content: fmt.Sprintf("Research notes on %s.\n\nKey findings: %s.", req.Topic, seed)}, nil
	case StageWrite:
		return &StageResult{Content: draftBlog(req.Topic, req.Inputs[StageResearch], seed)}, nil
	case StageEdit:
		draft := req.Inputs[StageWrite]
		if draft == "" {
			draft = draftBlog(req.Topic, "", seed)
		}
		return &StageResult{Content: draft}, nil
	case StageSocial:
		return &StageResult{Content: fmt.Sprintf("Hot take on %s: the details matter more than the headlines. #%s", req.Topic, seed)}, nil
	case StageAudio:
		return &StageResult{AssetURI: fmt.Sprintf("asset://audio/%s.mp3", seed)}, nil
	case StageVideo:
		return &StageResult{AssetURI: fmt.Sprintf("asset://video/%s.mp4", seed)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", ErrPipeline, req.Stage)
	}
}

// draftBlog builds a structurally valid blog draft: title, paragraphs, and
// enough words to pass validation.
func draftBlog(topic, research, seed string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: A Practical Overview\n\n", topic)
	if research != "" {
		b.WriteString(strings.SplitN(research, "\n", 2)[0])
		b.WriteString("\n\n")
	}
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&b, "Paragraph %d explores %s in depth, weighing the practical trade-offs "+
			"that practitioners encounter when applying these ideas day to day, and grounding "+
			"each claim in concrete observations rather than speculation (ref %s-%d).\n\n",
			i+1, topic, seed, i)
	}
	return strings.TrimSpace(b.String())
}
