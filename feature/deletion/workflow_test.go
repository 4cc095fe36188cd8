package deletion_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"media-janitor/core/database"
	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion"
	"media-janitor/feature/deletion/models"
	rulesmodels "media-janitor/feature/rules/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupWorkflow(t *testing.T) (*deletion.Workflow, *gorm.DB) {
	t.Helper()

	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&catalogmodels.Entry{}, &models.Request{}, &models.HistoryRecord{}))

	return deletion.NewWorkflow(db, zap.NewNop()), db
}

func seedEntries(t *testing.T, db *gorm.DB, entries []catalogmodels.Entry) []catalogmodels.Entry {
	t.Helper()
	for i := range entries {
		require.NoError(t, db.Create(&entries[i]).Error)
	}
	return entries
}

func testRule() *rulesmodels.Rule {
	return &rulesmodels.Rule{
		ID:      7,
		Name:    "old movies",
		Enabled: true,
	}
}

func TestProposeIdempotent(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Title: "A", Kind: catalogmodels.KindMovie, SizeBytes: 100},
		{Path: "/movies/b/b.mkv", Title: "B", Kind: catalogmodels.KindMovie, SizeBytes: 200},
	})
	rule := testRule()

	created, err := workflow.Propose(ctx, rule, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// Re-running the same rule over the same entries creates nothing new.
	created, err = workflow.Propose(ctx, rule, entries)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	_, total, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestProposeSkipsProtectedEntries(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/keep/keep.mkv", Title: "Keep", Kind: catalogmodels.KindMovie, Protected: true},
		{Path: "/movies/go/go.mkv", Title: "Go", Kind: catalogmodels.KindMovie},
	})

	created, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "/movies/go/go.mkv", reqs[0].Entry.Path)
}

func TestProposeAfterTerminalRequestCreatesNew(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Title: "A", Kind: catalogmodels.KindMovie},
	})
	rule := testRule()

	created, err := workflow.Propose(ctx, rule, entries)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)
	_, err = workflow.Cancel(ctx, reqs[0].ID, "alice", "changed my mind")
	require.NoError(t, err)

	// The earlier request is terminal, so the pair is eligible again.
	created, err = workflow.Propose(ctx, rule, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestApproveRecordsIdentityAndSchedule(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Title: "A", Kind: catalogmodels.KindMovie},
	})
	_, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)
	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)

	when := time.Now().Add(time.Hour).Truncate(time.Second)
	req, err := workflow.Approve(ctx, reqs[0].ID, "alice", "disk pressure", &when)
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, req.Status)
	assert.Equal(t, "alice", req.ApprovedBy)
	assert.Equal(t, "disk pressure", req.ApproveReason)
	require.NotNil(t, req.ScheduledFor)
	assert.WithinDuration(t, when, *req.ScheduledFor, time.Second)

	// Scheduled in the future, so not due yet.
	due, err := workflow.Due(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestCancelTerminalRequestRejected(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Title: "A", Kind: catalogmodels.KindMovie, SizeBytes: 500},
	})
	_, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)
	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)

	req, err := workflow.Approve(ctx, reqs[0].ID, "alice", "", nil)
	require.NoError(t, err)
	require.NoError(t, workflow.MarkCompleted(ctx, req, []string{"deleted"}, req.SizeBytes))

	_, err = workflow.Cancel(ctx, req.ID, "bob", "too late")
	assert.ErrorIs(t, err, deletion.ErrInvalidTransition)

	got, err := workflow.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestApproveMissingRequest(t *testing.T) {
	workflow, _ := setupWorkflow(t)

	_, err := workflow.Approve(context.Background(), 999, "alice", "", nil)
	assert.ErrorIs(t, err, deletion.ErrNotFound)
}

func TestBulkApproveReportsSkipped(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Kind: catalogmodels.KindMovie},
		{Path: "/movies/b/b.mkv", Kind: catalogmodels.KindMovie},
		{Path: "/movies/c/c.mkv", Kind: catalogmodels.KindMovie},
	})
	_, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)
	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	// Cancel one first; bulk approve must skip it.
	_, err = workflow.Cancel(ctx, reqs[0].ID, "alice", "")
	require.NoError(t, err)

	ids := []uint{reqs[0].ID, reqs[1].ID, reqs[2].ID}
	updated, skipped, err := workflow.BulkApprove(ctx, ids, "alice", "batch", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, 1, skipped)
}

func TestMarkCompletedRemovesLiveEntryAndWritesHistory(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Title: "A", Kind: catalogmodels.KindMovie, SizeBytes: 4096},
	})
	_, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)
	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)

	req, err := workflow.Approve(ctx, reqs[0].ID, "alice", "", nil)
	require.NoError(t, err)
	require.NoError(t, workflow.MarkCompleted(ctx, req, []string{"deleted movie file 3"}, 4096))

	got, err := workflow.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, catalogmodels.StringList{"deleted movie file 3"}, got.Results)

	var liveCount int64
	require.NoError(t, db.Model(&catalogmodels.Entry{}).Where("id = ?", req.EntryID).Count(&liveCount).Error)
	assert.Zero(t, liveCount, "live entry must be dropped after completion")

	records, total, err := workflow.History(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.True(t, records[0].Success)
	assert.Equal(t, int64(4096), records[0].BytesFreed)
	assert.Equal(t, "/movies/a/a.mkv", records[0].EntryPath)
}

func TestMarkFailedKeepsEntryAndRecordsError(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Title: "A", Kind: catalogmodels.KindMovie, SizeBytes: 4096},
	})
	_, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)
	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)

	req, err := workflow.Approve(ctx, reqs[0].ID, "alice", "", nil)
	require.NoError(t, err)
	require.NoError(t, workflow.MarkFailed(ctx, req, errors.New("radarr unavailable")))

	got, err := workflow.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "radarr unavailable", got.Error)

	var liveCount int64
	require.NoError(t, db.Model(&catalogmodels.Entry{}).Where("id = ?", req.EntryID).Count(&liveCount).Error)
	assert.Equal(t, int64(1), liveCount, "failed execution must not drop the entry")

	records, _, err := workflow.History(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Zero(t, records[0].BytesFreed)
}

func TestStatsGroupsByStatus(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Kind: catalogmodels.KindMovie, SizeBytes: 100},
		{Path: "/movies/b/b.mkv", Kind: catalogmodels.KindMovie, SizeBytes: 200},
		{Path: "/movies/c/c.mkv", Kind: catalogmodels.KindMovie, SizeBytes: 300},
	})
	_, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)
	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)

	_, err = workflow.Approve(ctx, reqs[0].ID, "alice", "", nil)
	require.NoError(t, err)

	stats, err := workflow.Stats(ctx)
	require.NoError(t, err)

	byStatus := map[models.Status]deletion.StatusSummary{}
	for _, row := range stats {
		byStatus[row.Status] = row
	}
	assert.Equal(t, int64(2), byStatus[models.StatusPending].Count)
	assert.Equal(t, int64(1), byStatus[models.StatusApproved].Count)

	// Pending total excludes the approved request's bytes.
	assert.Equal(t, int64(600), byStatus[models.StatusPending].TotalBytes+byStatus[models.StatusApproved].TotalBytes)
}

func TestDeleteByRuleCascades(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Kind: catalogmodels.KindMovie, SizeBytes: 100},
	})
	rule := testRule()
	_, err := workflow.Propose(ctx, rule, entries)
	require.NoError(t, err)
	reqs, _, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)

	req, err := workflow.Approve(ctx, reqs[0].ID, "alice", "", nil)
	require.NoError(t, err)
	require.NoError(t, workflow.MarkCompleted(ctx, req, nil, 100))

	require.NoError(t, workflow.DeleteByRule(ctx, rule.ID))

	_, total, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, historyTotal, err := workflow.History(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, historyTotal)
}

func TestOrphanRequestHelpers(t *testing.T) {
	workflow, db := setupWorkflow(t)
	ctx := context.Background()

	entries := seedEntries(t, db, []catalogmodels.Entry{
		{Path: "/movies/a/a.mkv", Kind: catalogmodels.KindMovie},
	})
	_, err := workflow.Propose(ctx, testRule(), entries)
	require.NoError(t, err)

	has, err := workflow.HasCompletedByEntry(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, workflow.NonCompletedByEntry(ctx, entries[0].ID))

	_, total, err := workflow.List(ctx, deletion.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "pending request for the orphan must be dropped")
}
