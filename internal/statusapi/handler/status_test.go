package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/statusapi/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	repos []*core.Repository
	err   error
}

func (f *fakeStore) GetAutoScanRepositories(ctx context.Context) ([]*core.Repository, error) {
	return f.repos, f.err
}
func (f *fakeStore) GetRepository(ctx context.Context, id int64) (*core.Repository, error) {
	return nil, nil
}
func (f *fakeStore) UpdateRepositoryPath(ctx context.Context, id int64, path string) error {
	return nil
}
func (f *fakeStore) ClearReviewRequested(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) StartScan(ctx context.Context, id int64, startedAt int64) error { return nil }
func (f *fakeStore) UpdateScanProgress(ctx context.Context, id int64, processed int, currentFile string, costAccumulated float64, cacheHits, apiCalls int) error {
	return nil
}
func (f *fakeStore) CompleteScan(ctx context.Context, id int64, headSHA string, budgetHalted bool, analyzedAt int64) error {
	return nil
}
func (f *fakeStore) FailScan(ctx context.Context, id int64) error                           { return nil }
func (f *fakeStore) SetLastScanCheck(ctx context.Context, id int64, checkedAt int64) error { return nil }
func (f *fakeStore) GetCheckpoint(ctx context.Context, repoID int64) (*core.ScanCheckpoint, error) {
	return nil, nil
}
func (f *fakeStore) UpsertCheckpoint(ctx context.Context, cp core.ScanCheckpoint) error { return nil }
func (f *fakeStore) DeleteCheckpoint(ctx context.Context, repoID int64) error           { return nil }
func (f *fakeStore) LogScanEvent(ctx context.Context, repoID int64, eventType, message string) error {
	return nil
}
func (f *fakeStore) CreateTask(ctx context.Context, task core.Task) error { return nil }

func TestStatusHandler_List(t *testing.T) {
	store := &fakeStore{repos: []*core.Repository{
		{ID: 1, Name: "demo", AutoScan: true, ScanFilesProcessed: 42, ScanCostAccumulated: 1.23},
	}}
	h := handler.NewStatusHandler(store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "demo", body[0]["name"])
	assert.Equal(t, float64(42), body[0]["scan_files_processed"])
}

func TestStatusHandler_List_StoreError(t *testing.T) {
	store := &fakeStore{err: assert.AnError}
	h := handler.NewStatusHandler(store, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
