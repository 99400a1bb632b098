package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-scheduler/internal/models"
	"report-scheduler/internal/store"
)

func TestClaimJobWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev, ok, err := s.ClaimJob(ctx, "job", t0, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, prev)

	prev, ok, _ = s.ClaimJob(ctx, "job", t0.Add(59*time.Minute), time.Hour)
	assert.False(t, ok)
	assert.Equal(t, t0, *prev)

	prev, ok, _ = s.ClaimJob(ctx, "job", t0.Add(time.Hour), time.Hour)
	assert.True(t, ok)
	assert.Equal(t, t0, *prev)

	hist, err := s.ListJobHistory(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, t0.Add(time.Hour), hist[0].LastRunAt)
}

func TestClaimJobConcurrentGrantsOnce(t *testing.T) {
	s := New()
	now := time.Now()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := s.ClaimJob(context.Background(), "job", now, time.Minute); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, granted)
}

func TestWithTxDiscardsOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q store.Queries) error {
		require.NoError(t, q.InsertOutboxEmail(ctx, models.OutboxEmail{ID: "1", CreatedAt: time.Now()}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	n, _ := s.CountOutboxEmails(ctx)
	assert.Zero(t, n)

	err = s.WithTx(ctx, func(q store.Queries) error {
		return q.InsertOutboxEmail(ctx, models.OutboxEmail{ID: "1", CreatedAt: time.Now()})
	})
	require.NoError(t, err)
	n, _ = s.CountOutboxEmails(ctx)
	assert.EqualValues(t, 1, n)
}

func TestReportsWithEngagementBetween(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := func(d int) *time.Time {
		v := time.Date(2026, 3, d, 10, 0, 0, 0, time.UTC)
		return &v
	}
	s.PutReport(models.Report{UUID: "r1", EngagementDate: day(1)})
	s.PutReport(models.Report{UUID: "r2", EngagementDate: day(2)})
	s.PutReport(models.Report{UUID: "r3", EngagementDate: day(3)})
	s.PutReport(models.Report{UUID: "r4"})

	got, err := s.ReportsWithEngagementBetween(ctx, day(1), *day(2))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].UUID)

	got, _ = s.ReportsWithEngagementBetween(ctx, nil, *day(3))
	assert.Len(t, got, 3)
}

func TestSetPersonInPositionKeepsHistoryDisjoint(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.PutPerson(models.Person{UUID: "p1", Status: models.PersonActive})
	s.PutPerson(models.Person{UUID: "p2", Status: models.PersonActive})
	s.PutPosition(models.Position{UUID: "pos1"})

	require.NoError(t, s.SetPersonInPosition(ctx, "p1", "pos1", start))
	require.NoError(t, s.SetPersonInPosition(ctx, "p2", "pos1", start.AddDate(0, 1, 0)))

	p1, err := s.GetPerson(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p1.PositionUUID)
	p2, _ := s.GetPerson(ctx, "p2")
	require.NotNil(t, p2.PositionUUID)

	hist, _ := s.PositionHistory(ctx, "p1")
	require.Len(t, hist, 1)
	require.NotNil(t, hist[0].EndTime)

	// p1 cannot come back to a period already covered by p2.
	err = s.SetPersonInPosition(ctx, "p1", "pos1", start.AddDate(0, 0, 15))
	assert.ErrorIs(t, err, models.ErrHistoryOverlap)

	require.NoError(t, s.RemovePersonFromPosition(ctx, "pos1", start.AddDate(0, 2, 0)))
	pos, _ := s.GetPosition(ctx, "pos1")
	assert.Nil(t, pos.CurrentPersonUUID)
}

func TestNotFoundErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.GetPerson(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetLocation(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetTask(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdatePersonStatus(ctx, "x", models.PersonInactive), store.ErrNotFound)
}

func TestMarkEngagementWarned(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutReport(models.Report{UUID: "r1", State: models.ReportPendingApproval})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A rolled back mark is forgotten.
	err := s.WithTx(ctx, func(q store.Queries) error {
		ok, err := q.MarkEngagementWarned(ctx, "r1", "step", at)
		require.NoError(t, err)
		require.True(t, ok)
		return errors.New("enqueue failed")
	})
	require.Error(t, err)

	ok, err := s.MarkEngagementWarned(ctx, "r1", "step", at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.MarkEngagementWarned(ctx, "r1", "step", at.Add(time.Hour))
	assert.False(t, ok)
	ok, _ = s.MarkEngagementWarned(ctx, "r1", "other-step", at)
	assert.True(t, ok)

	_, err = s.MarkEngagementWarned(ctx, "missing", "step", at)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
