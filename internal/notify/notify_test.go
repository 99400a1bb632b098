package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	next := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	actions := []Action{
		FutureEngagementWarning{ReportUUID: "r1", Intent: "Discuss logistics", EngagementDate: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		AccountDeactivationWarning{PersonUUID: "p1", PersonName: "ERINSON, Erin", EndOfTourDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), NextReminder: &next},
		AccountDeactivation{PersonUUID: "p1", PersonName: "ERINSON, Erin", EndOfTourDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, a := range actions {
		raw, err := Marshal(a)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"type":"`+string(a.Kind())+`"`)

		got, err := Unmarshal(raw)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestUnmarshalUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"daily_rollup","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	env := Env{ServerURL: "https://reports.example.com", SupportEmailAddr: "help@example.com", DateFormat: "2006-01-02"}
	next := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)

	subject, body, err := Render(FutureEngagementWarning{ReportUUID: "r1", Intent: "<b>Meet</b>", EngagementDate: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}, env)
	require.NoError(t, err)
	assert.Equal(t, "Planned engagement needs your attention: 2026-06-01", subject)
	assert.Contains(t, body, "https://reports.example.com/reports/r1")
	assert.Contains(t, body, "&lt;b&gt;Meet&lt;/b&gt;")

	subject, body, err = Render(AccountDeactivationWarning{PersonUUID: "p1", PersonName: "Erin", EndOfTourDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), NextReminder: &next}, env)
	require.NoError(t, err)
	assert.Equal(t, "Your account will be deactivated on 2026-07-01", subject)
	assert.Contains(t, body, "another reminder on 2026-06-16")

	_, body, err = Render(AccountDeactivationWarning{PersonUUID: "p1", PersonName: "Erin", EndOfTourDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}, env)
	require.NoError(t, err)
	assert.False(t, strings.Contains(body, "another reminder"))

	subject, body, err = Render(AccountDeactivation{PersonUUID: "p1", PersonName: "Erin", EndOfTourDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}, env)
	require.NoError(t, err)
	assert.Equal(t, "Your account has been deactivated", subject)
	assert.Contains(t, body, "mailto:help@example.com")
}

func TestRenderUsesTimeZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	env := Env{Location: loc, DateFormat: "2006-01-02"}
	subject, _, err := Render(FutureEngagementWarning{ReportUUID: "r1", EngagementDate: time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)}, env)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(subject, "2026-06-02"))
}
