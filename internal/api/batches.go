package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/model"
)

// APIBatch is the snapshot wire representation of a batch.
type APIBatch struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Progress      float64    `json:"progress"`
	CurrentStep   string     `json:"currentStep"`
	StepIndex     int        `json:"stepIndex"`
	TotalSteps    int        `json:"totalSteps"`
	ExecutionID   string     `json:"executionId"`
	Steps         []APIStep  `json:"steps"`
	LastRunPassed *bool      `json:"lastRunPassed"`
	Elapsed       float64    `json:"elapsed"`
}

// APIStep is the snapshot wire representation of a sequence step.
type APIStep struct {
	Order    int     `json:"order"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Pass     *bool   `json:"pass"`
	Duration float64 `json:"duration"`
	Result   string  `json:"result"`
}

// batchListResponse is the GET /batches response.
type batchListResponse struct {
	Batches []APIBatch `json:"batches"`
}

// ToModel converts an API batch to the internal model.
func (a APIBatch) ToModel() model.Batch {
	b := model.Batch{
		ID:          a.ID,
		Name:        a.Name,
		Status:      model.BatchStatus(a.Status),
		Progress:    a.Progress,
		CurrentStep: a.CurrentStep,
		StepIndex:   a.StepIndex,
		TotalSteps:  a.TotalSteps,
		ExecutionID: a.ExecutionID,
		Elapsed:     a.Elapsed,
	}
	if a.LastRunPassed != nil {
		v := *a.LastRunPassed
		b.LastRunPassed = &v
	}
	if len(a.Steps) > 0 {
		b.Steps = make([]model.Step, 0, len(a.Steps))
		for _, s := range a.Steps {
			step := model.Step{
				Order:    s.Order,
				Name:     s.Name,
				Status:   model.StepStatus(s.Status),
				Duration: s.Duration,
				Result:   s.Result,
			}
			if s.Pass != nil {
				v := *s.Pass
				step.Pass = &v
			}
			b.Steps = append(b.Steps, step)
		}
	}
	return b
}

// ListBatches fetches a full snapshot of every batch on the station.
func (c *Client) ListBatches(ctx context.Context) ([]model.Batch, error) {
	var resp batchListResponse
	if err := c.get(ctx, "/batches", nil, &resp); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	batches := make([]model.Batch, 0, len(resp.Batches))
	for _, a := range resp.Batches {
		batches = append(batches, a.ToModel())
	}
	return batches, nil
}

// GetBatch fetches a snapshot of one batch.
func (c *Client) GetBatch(ctx context.Context, id string) (model.Batch, error) {
	var resp APIBatch
	if err := c.get(ctx, "/batches/"+url.PathEscape(id), nil, &resp); err != nil {
		return model.Batch{}, fmt.Errorf("get batch %s: %w", id, err)
	}
	return resp.ToModel(), nil
}
