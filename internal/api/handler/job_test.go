package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

func TestJobHandler_Get(t *testing.T) {
	id := uuid.New()

	jobs := new(MockJobReader)
	jobs.On("Get", mock.Anything, id).Return(domain.JobStatus{
		ID:      id,
		State:   domain.JobStateSuccess,
		Current: 3,
		Total:   3,
		Message: "done",
		Result:  json.RawMessage(`{"faces_detected":2}`),
	}, nil)
	jobs.On("Get", mock.Anything, mock.Anything).Return(domain.JobStatus{}, domain.ErrJobNotFound)

	h := NewJobHandler(jobs, testLogger())
	app := newTestApp()
	app.Get("/v1/jobs/:id", h.Get)

	t.Run("terminal job carries its result", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/v1/jobs/"+id.String(), nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var status domain.JobStatus
		require.NoError(t, json.Unmarshal(readBody(t, resp), &status))
		assert.Equal(t, domain.JobStateSuccess, status.State)
		assert.Equal(t, 3, status.Current)
		assert.JSONEq(t, `{"faces_detected":2}`, string(status.Result))
	})

	t.Run("unknown job", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/v1/jobs/"+uuid.NewString(), nil))
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
		assert.Contains(t, string(readBody(t, resp)), "JOB_NOT_FOUND")
	})

	t.Run("malformed id", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/v1/jobs/xyz", nil))
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}
