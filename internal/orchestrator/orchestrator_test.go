package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/orchestrator"
	"github.com/sevigo/audit-scanner/internal/storage"
)

type fakeStore struct {
	mu sync.Mutex

	repos          []*core.Repository
	checkpoints    map[int64]core.ScanCheckpoint
	events         []string
	completedHash  map[int64]string
	budgetHalted   map[int64]bool
	failed         map[int64]bool
	reviewCleared  map[int64]bool
}

func newFakeStore(repos ...*core.Repository) *fakeStore {
	return &fakeStore{
		repos:         repos,
		checkpoints:   map[int64]core.ScanCheckpoint{},
		completedHash: map[int64]string{},
		budgetHalted:  map[int64]bool{},
		failed:        map[int64]bool{},
		reviewCleared: map[int64]bool{},
	}
}

func (f *fakeStore) GetAutoScanRepositories(ctx context.Context) ([]*core.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repos, nil
}

func (f *fakeStore) GetRepository(ctx context.Context, id int64) (*core.Repository, error) {
	for _, r := range f.repos {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) UpdateRepositoryPath(ctx context.Context, id int64, path string) error {
	return nil
}

func (f *fakeStore) ClearReviewRequested(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewCleared[id] = true
	for _, r := range f.repos {
		if r.ID == id {
			r.ReviewRequested = false
		}
	}
	return nil
}

func (f *fakeStore) StartScan(ctx context.Context, id int64, startedAt int64) error { return nil }

func (f *fakeStore) UpdateScanProgress(ctx context.Context, id int64, processed int, currentFile string, costAccumulated float64, cacheHits, apiCalls int) error {
	return nil
}

func (f *fakeStore) CompleteScan(ctx context.Context, id int64, headSHA string, budgetHalted bool, analyzedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budgetHalted[id] = budgetHalted
	if !budgetHalted {
		f.completedHash[id] = headSHA
	}
	return nil
}

func (f *fakeStore) FailScan(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = true
	return nil
}

func (f *fakeStore) SetLastScanCheck(ctx context.Context, id int64, checkedAt int64) error { return nil }

func (f *fakeStore) GetCheckpoint(ctx context.Context, repoID int64) (*core.ScanCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[repoID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

func (f *fakeStore) UpsertCheckpoint(ctx context.Context, cp core.ScanCheckpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints[cp.RepoID] = cp
	return nil
}

func (f *fakeStore) DeleteCheckpoint(ctx context.Context, repoID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.checkpoints, repoID)
	return nil
}

func (f *fakeStore) LogScanEvent(ctx context.Context, repoID int64, eventType, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

type fakeGitEngine struct {
	files   []string
	headSHA string
}

func (f *fakeGitEngine) EnsureLocal(ctx context.Context, gitURL, path, token string) error {
	return nil
}

func (f *fakeGitEngine) ChangedFiles(path string, lastCommitHash *string) (core.ChangeSet, error) {
	return core.ChangeSet{Files: f.files, HeadSHA: f.headSHA, IsFirstScan: lastCommitHash == nil}, nil
}

type fakePipeline struct {
	mu    sync.Mutex
	costs map[string]float64
	calls []string
}

func (f *fakePipeline) AnalyzeFile(ctx context.Context, repoID int64, repoPath, filePath string) (core.FileAnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filePath)
	return core.FileAnalysisResult{CostUSD: f.costs[filePath], TokensUsed: 10}, nil
}

type fakeReviewer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeReviewer) Run(ctx context.Context, repoID int64, repoName, repoPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func testRepo(id int64) *core.Repository {
	return &core.Repository{
		ID:                  id,
		Name:                "repo",
		Path:                "/tmp/repo",
		AutoScan:            true,
		ScanIntervalMinutes: 60,
		LastScanCheck:       0,
	}
}

func TestScan_FullCompletionAdvancesCommitHash(t *testing.T) {
	repo := testRepo(1)
	store := newFakeStore(repo)
	git := &fakeGitEngine{files: []string{"main.go"}, headSHA: "abc123"}
	pipeline := &fakePipeline{costs: map[string]float64{"main.go": 0.01}}
	reviewer := &fakeReviewer{}

	o := orchestrator.New(store, git, pipeline, reviewer, orchestrator.Config{ScanCostBudgetUSD: 1.0}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	o.RunOnce(ctx)

	assert.Equal(t, "abc123", store.completedHash[1])
	assert.False(t, store.budgetHalted[1])
	assert.Equal(t, 1, reviewer.calls)
	_, hasCheckpoint := store.checkpoints[1]
	assert.False(t, hasCheckpoint)
}

func TestScan_BudgetHaltDoesNotAdvanceCommitHashOrCallReviewer(t *testing.T) {
	repo := testRepo(1)
	store := newFakeStore(repo)
	git := &fakeGitEngine{files: []string{"a.go", "b.go", "c.go"}, headSHA: "head1"}
	pipeline := &fakePipeline{costs: map[string]float64{"a.go": 0.5, "b.go": 0.5, "c.go": 0.5}}
	reviewer := &fakeReviewer{}

	o := orchestrator.New(store, git, pipeline, reviewer, orchestrator.Config{ScanCostBudgetUSD: 0.6}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	o.RunOnce(ctx)

	assert.True(t, store.budgetHalted[1])
	_, advanced := store.completedHash[1]
	assert.False(t, advanced)
	assert.Equal(t, 0, reviewer.calls)

	cp, ok := store.checkpoints[1]
	require.True(t, ok)
	assert.Equal(t, 2, cp.FilesAnalyzed)
}

func TestScan_ReviewRequestedBypassesFileLoop(t *testing.T) {
	repo := testRepo(1)
	repo.ReviewRequested = true
	store := newFakeStore(repo)
	git := &fakeGitEngine{files: []string{"a.go"}, headSHA: "head1"}
	pipeline := &fakePipeline{}
	reviewer := &fakeReviewer{}

	o := orchestrator.New(store, git, pipeline, reviewer, orchestrator.Config{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	o.RunOnce(ctx)

	assert.True(t, store.reviewCleared[1])
	assert.Equal(t, 1, reviewer.calls)
	assert.Empty(t, pipeline.calls)
}

func TestScan_IntervalGateSkipsRecentRepo(t *testing.T) {
	repo := testRepo(1)
	repo.LastScanCheck = time.Now().Unix()
	store := newFakeStore(repo)
	git := &fakeGitEngine{files: []string{"a.go"}, headSHA: "head1"}
	pipeline := &fakePipeline{}
	reviewer := &fakeReviewer{}

	o := orchestrator.New(store, git, pipeline, reviewer, orchestrator.Config{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	o.RunOnce(ctx)

	assert.Empty(t, pipeline.calls)
	assert.Equal(t, 0, reviewer.calls)
}
