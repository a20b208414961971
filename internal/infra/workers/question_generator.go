package workers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftforge/propeller/internal/domain/pipeline"
	"github.com/draftforge/propeller/pkg/common/logger"
)

var _ pipeline.QuestionGenerationWorker = (*QuestionGenerationClient)(nil)

// QuestionGenerationClient starts follow-up question generation jobs on the
// external generator service over HTTP.
type QuestionGenerationClient struct {
	jobClient
}

// NewQuestionGenerationClient creates a client for the question generator
// service. Passing a nil http.Client selects a default with a 30s timeout.
func NewQuestionGenerationClient(httpClient *http.Client, cfg ClientConfig, log *logger.Logger, tracer trace.Tracer) *QuestionGenerationClient {
	return &QuestionGenerationClient{jobClient: newJobClient(httpClient, cfg, log, tracer)}
}

type generateRequest struct {
	MaxQuestions int    `json:"max_questions,omitempty"`
	Locale       string `json:"locale,omitempty"`
}

type generateResponse struct {
	QuestionCount int `json:"question_count"`
}

// Start begins question generation for the session and returns the number of
// questions the service scheduled.
func (c *QuestionGenerationClient) Start(ctx context.Context, sessionID uuid.UUID, opts pipeline.QuestionGenerationOptions) (int, error) {
	url := fmt.Sprintf("%s/api/v1/sessions/%s/questions", c.cfg.BaseURL, sessionID)

	var resp generateResponse
	req := generateRequest{MaxQuestions: opts.MaxQuestions, Locale: opts.Locale}
	if err := c.postJob(ctx, "question_generator.start", url, req, &resp); err != nil {
		return 0, fmt.Errorf("starting question generation: %w", err)
	}
	return resp.QuestionCount, nil
}
