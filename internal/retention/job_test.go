package retention

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStore struct {
	counts     map[string]int64
	purged     int64
	err        error
	purgeCalls int
	lastBefore time.Time
}

func (s *fakeStore) CountRetiredByPurpose(_ context.Context, before time.Time) (map[string]int64, error) {
	s.lastBefore = before
	return s.counts, s.err
}

func (s *fakeStore) PurgeRetired(_ context.Context, before time.Time) (int64, error) {
	s.purgeCalls++
	return s.purged, s.err
}

func newTestJob(t *testing.T, store *fakeStore) *Job {
	t.Helper()
	job, err := NewJob(store, 24*time.Hour)
	require.NoError(t, err)
	job.now = func() time.Time { return time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC) }
	return job
}

func TestJob_Purge(t *testing.T) {
	store := &fakeStore{counts: map[string]int64{"PASSWORD_RESET": 3, "TWO_FACTOR_AUTH": 4}, purged: 7}

	res, err := newTestJob(t, store).Run(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), res.Cutoff)
	assert.Equal(t, store.lastBefore, res.Cutoff)
	assert.Equal(t, int64(7), res.Total())
	assert.Equal(t, int64(7), res.Purged)
	assert.Equal(t, 1, store.purgeCalls)
}

func TestJob_DryRunDoesNotDelete(t *testing.T) {
	store := &fakeStore{counts: map[string]int64{"PASSWORD_RESET": 3}}

	res, err := newTestJob(t, store).Run(context.Background(), true)

	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Zero(t, store.purgeCalls)
}

func TestJob_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	_, err := newTestJob(t, store).Run(context.Background(), false)
	assert.Error(t, err)
}

func TestNewJob_Validation(t *testing.T) {
	_, err := NewJob(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewJob(&fakeStore{}, 0)
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	res := &Result{
		Cutoff: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Counts: map[string]int64{"TWO_FACTOR_AUTH": 4, "PASSWORD_RESET": 3},
		Purged: 7,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Retention")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Назначение", rows[0][0])
	assert.Equal(t, []string{"PASSWORD_RESET", "3", "2025-05-01T00:00:00Z", "purge"}, rows[1])
	assert.Equal(t, "TWO_FACTOR_AUTH", rows[2][0])
	assert.Equal(t, []string{"TOTAL", "7", "2025-05-01T00:00:00Z", "purge"}, rows[3])
}
