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

var _ pipeline.DocumentAnalysisWorker = (*DocumentAnalysisClient)(nil)

// DocumentAnalysisClient starts document-analysis jobs on the external
// analyzer service over HTTP.
type DocumentAnalysisClient struct {
	jobClient
}

// NewDocumentAnalysisClient creates a client for the document analyzer
// service. Passing a nil http.Client selects a default with a 30s timeout.
func NewDocumentAnalysisClient(httpClient *http.Client, cfg ClientConfig, log *logger.Logger, tracer trace.Tracer) *DocumentAnalysisClient {
	return &DocumentAnalysisClient{jobClient: newJobClient(httpClient, cfg, log, tracer)}
}

type analyzeRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
}

type analyzeResponse struct {
	DocumentCount int `json:"document_count"`
}

// Start begins analysis of every document in the project and returns the
// number of documents the service will process. Progress is reported
// asynchronously through the state store.
func (c *DocumentAnalysisClient) Start(ctx context.Context, sessionID, projectID uuid.UUID) (int, error) {
	url := fmt.Sprintf("%s/api/v1/sessions/%s/analyze", c.cfg.BaseURL, sessionID)

	var resp analyzeResponse
	if err := c.postJob(ctx, "document_analyzer.start", url, analyzeRequest{ProjectID: projectID}, &resp); err != nil {
		return 0, fmt.Errorf("starting document analysis: %w", err)
	}
	return resp.DocumentCount, nil
}
