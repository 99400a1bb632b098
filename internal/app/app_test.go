package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"report-scheduler/internal/config"
	"report-scheduler/internal/mail"
	"report-scheduler/internal/mailbox"
	"report-scheduler/internal/mart"
	"report-scheduler/internal/models"
	"report-scheduler/internal/store/memstore"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (r *recordingTransport) Send(_ context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		StoreDriver:              "memory",
		ClaimBackend:             "store",
		OutboxInterval:           time.Minute,
		FutureEngagementInterval: time.Hour,
		DeactivationInterval:     24 * time.Hour,
		MartInterval:             10 * time.Minute,
		EmailBatchSize:           10,
		DeactivationEnabled:      true,
		DeactivationWarningDays:  []int{45, 30, 15},
		MartEnabled:              true,
		MartBatchSize:            10,
		AttachmentDir:            t.TempDir(),
		TimeZone:                 "UTC",
		DateFormat:               "02 January 2006",
		ServerURL:                "https://reports.example.com",
	}
}

func TestJobsRegistered(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t), Options{Mailbox: mailbox.NewMemoryMailbox()})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	var names []string
	for _, j := range a.Scheduler.Jobs() {
		names = append(names, j.Name)
	}
	assert.ElementsMatch(t, []string{JobOutbox, JobFutureEngagement, JobAccountDeactivation, JobMartImport}, names)
}

func TestDisabledJobsAreNotRegistered(t *testing.T) {
	cfg := testConfig(t)
	cfg.DeactivationEnabled = false
	cfg.MartEnabled = false
	cfg.SMTPDisabled = true

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.Len(t, a.Scheduler.Jobs(), 2)
}

func TestUnknownBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "sqlite"
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{})
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.TimeZone = "Mars/Olympus"
	_, err = New(context.Background(), cfg, zaptest.NewLogger(t), Options{})
	assert.Error(t, err)
}

func TestDeactivationThenDelivery(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	st := memstore.New()
	eot := now.AddDate(0, 0, -1)
	st.PutPerson(models.Person{UUID: "p1", Name: "SMITH, Ann", EmailAddress: "ann@example.com", DomainUsername: "ann@corp.example", Status: models.PersonActive, EndOfTourDate: &eot})
	transport := &recordingTransport{}

	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t), Options{
		Store:     st,
		Transport: transport,
		Mailbox:   mailbox.NewMemoryMailbox(),
		Clock:     func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	ctx := context.Background()

	require.NoError(t, a.Scheduler.RunNow(ctx, JobAccountDeactivation))
	p, err := st.GetPerson(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PersonInactive, p.Status)

	require.NoError(t, a.Scheduler.RunNow(ctx, JobOutbox))
	require.Len(t, transport.sent, 1)
	assert.Equal(t, []string{"ann@example.com"}, transport.sent[0].To)
	assert.Equal(t, "Your account has been deactivated", transport.sent[0].Subject)

	n, err := st.CountOutboxEmails(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMartImportJob(t *testing.T) {
	st := memstore.New()
	st.PutPerson(models.Person{UUID: "p1", EmailAddress: "jane@example.com", Status: models.PersonActive})
	st.PutOrganization(models.Organization{UUID: "org-1", ShortName: "EF 1"})
	st.PutLocation(models.Location{UUID: "loc-1", Name: "Site"})
	mb := mailbox.NewMemoryMailbox()
	body, err := json.Marshal(mart.ReportDto{UUID: "r1", Email: "jane@example.com", OrganizationUUID: "org-1", OrganizationName: "EF 1", LocationUUID: "loc-1", Intent: "visit"})
	require.NoError(t, err)
	mb.Add(mart.Message{ID: "m1", Body: body})

	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t), Options{Store: st, Mailbox: mb, Transport: &recordingTransport{}})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Scheduler.RunNow(context.Background(), JobMartImport))
	_, err = st.GetReport(context.Background(), "r1")
	require.NoError(t, err)
	assert.Zero(t, mb.Len())
}
