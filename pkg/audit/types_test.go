package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_JSON(t *testing.T) {
	entry := &Entry{
		ID:         7,
		Timestamp:  time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC),
		ActorID:    2,
		ActorName:  "penyarikan",
		ActorRole:  "operator",
		Action:     ActionUpdate,
		TargetType: TargetPayment,
		TargetID:   "14",
		OldValues:  json.RawMessage(`{"status":"valid"}`),
		NewValues:  json.RawMessage(`{"status":"invalid"}`),
		Request:    RequestMeta{RequestID: "req-1", Method: "PUT", Path: "/payments/14/status"},
	}

	data, err := entry.ToJSON()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "payment", raw["target_type"])
	assert.Equal(t, map[string]any{"status": "valid"}, raw["old_values"])

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, entry, parsed)
}

func TestEntry_CreateOmitsOldValues(t *testing.T) {
	entry := &Entry{Action: ActionCreate, TargetType: TargetResident, TargetID: "1", NewValues: json.RawMessage(`{}`)}
	data, err := entry.ToJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old_values")
}

func TestDeleted(t *testing.T) {
	data, err := json.Marshal(Deleted("42"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"42","deleted":true}`, string(data))
}
