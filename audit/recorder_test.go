package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bdevloed/graph-login-service/audit"
	"github.com/bdevloed/graph-login-service/sparql/sparqlfake"
)

func TestRecordRejection(t *testing.T) {
	store := sparqlfake.New()
	recorder, err := audit.NewRecorder(store, "http://mu.semte.ch/graphs/public", "http://data.example.com/",
		audit.WithNewID(func() string { return "log-1" }),
		audit.WithNowTime(func() time.Time {
			return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		}))
	require.NoError(t, err)

	err = recorder.RecordRejection(context.Background(),
		"http://mu.semte.ch/vocabularies/ext/log-classes/no-tenant-for-identity",
		"no tenant found",
		"http://mu.semte.ch/sessions/abc",
		"g1")
	require.NoError(t, err)

	updates := store.Updates()
	require.Len(t, updates, 1)
	require.Contains(t, updates[0], "http://mu.semte.ch/graphs/public")
	require.Contains(t, updates[0], "http://data.example.com/id/log-entries/log-1")
	require.Contains(t, updates[0], "no-tenant-for-identity")
	require.Contains(t, updates[0], `ext:logReference "g1"`)
	require.Contains(t, updates[0], "2024-03-01T12:00:00Z")
}

func TestNewRecorderValidatesArguments(t *testing.T) {
	_, err := audit.NewRecorder(nil, "g", "base")
	require.Error(t, err)

	_, err = audit.NewRecorder(sparqlfake.New(), "", "base")
	require.Error(t, err)
}
