package repo

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Bourreau/internal/domain"
)

// Интеграционные тесты с Postgres живут вне пакета; здесь — чистые helpers.

func TestMarshalLog_NilIsEmptyArray(t *testing.T) {
	b, err := marshalLog(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}

func TestMarshalLog_RoundTripsEntries(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := marshalLog([]domain.LogEntry{{Time: ts, Text: "worker: hello"}})
	require.NoError(t, err)

	var got []domain.LogEntry
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "worker: hello", got[0].Text)
	assert.True(t, ts.Equal(got[0].Time))
}

func TestStatusStrings(t *testing.T) {
	got := statusStrings(domain.ActionableStatuses())
	assert.Equal(t, []string{"New", "Queued", "On CPU", "Data Ready"}, got)
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	require.NotNil(t, nullString("job-1"))
	assert.Equal(t, "job-1", *nullString("job-1"))
}

func TestSchema_DeclaresTables(t *testing.T) {
	assert.True(t, strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS tasks"))
	assert.True(t, strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS messages"))
	assert.True(t, strings.Contains(Schema, "tasks_resource_status_idx"))
}
