package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/custody-api/internal/dto"
)

type fakeSchedulerRunner struct {
	report *dto.SchedulerReport
	called bool
}

func (f *fakeSchedulerRunner) Run(context.Context) *dto.SchedulerReport {
	f.called = true
	return f.report
}

func TestSchedulerHandlerRun(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runner := &fakeSchedulerRunner{report: &dto.SchedulerReport{
		Success: true,
		Results: []dto.SweepResult{{Task: "sla_breach_detection", Success: true, Count: 2}},
	}}
	handler := NewSchedulerHandler(runner)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/scheduler/run", nil)

	handler.Run(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.called)

	var envelope struct {
		Data dto.SchedulerReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Success)
	assert.Len(t, envelope.Data.Results, 1)
	assert.Equal(t, 2, envelope.Data.Results[0].Count)
}
