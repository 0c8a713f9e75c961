package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/cache"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/scheduler"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/search"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/service"
)

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp uses the production error handler so status codes match the real router.
func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(testLogger()),
	})
}

// multipartRequest builds a form with an optional file part and plain fields.
func multipartRequest(t *testing.T, method, target, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}

	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, r io.Reader, filename string) (*service.Registration, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(ctx, data, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Registration), args.Error(1)
}

type MockMediaReader struct {
	mock.Mock
}

func (m *MockMediaReader) GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MediaItem), args.Error(1)
}

func (m *MockMediaReader) List(ctx context.Context, filter domain.MediaFilter) ([]domain.MediaItem, int64, error) {
	args := m.Called(ctx, filter)
	items, _ := args.Get(0).([]domain.MediaItem)
	return items, args.Get(1).(int64), args.Error(2)
}

type MockFaceLister struct {
	mock.Mock
}

func (m *MockFaceLister) ListByMedia(ctx context.Context, mediaID uuid.UUID) ([]domain.FaceRecord, error) {
	args := m.Called(ctx, mediaID)
	faces, _ := args.Get(0).([]domain.FaceRecord)
	return faces, args.Error(1)
}

type MockJobReader struct {
	mock.Mock
}

func (m *MockJobReader) Get(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.JobStatus), args.Error(1)
}

type MockBatchScheduler struct {
	mock.Mock
}

func (m *MockBatchScheduler) Submit(ctx context.Context, mediaIDs []uuid.UUID, chunkSize int) (*scheduler.Batch, error) {
	args := m.Called(ctx, mediaIDs, chunkSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.Batch), args.Error(1)
}

func (m *MockBatchScheduler) Status(ctx context.Context, batchID uuid.UUID) (*scheduler.BatchStatus, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.BatchStatus), args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, q domain.SearchQuery) (*search.Result, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Result), args.Error(1)
}

func (m *MockSearcher) ClearCache(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockStatsReader struct {
	mock.Mock
}

func (m *MockStatsReader) Stats(ctx context.Context) (*domain.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

type MockCacheStats struct {
	mock.Mock
}

func (m *MockCacheStats) Stats(ctx context.Context, pattern string) (cache.Stats, error) {
	args := m.Called(ctx, pattern)
	return args.Get(0).(cache.Stats), args.Error(1)
}
