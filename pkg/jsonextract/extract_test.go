package jsonextract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_DirectParse(t *testing.T) {
	raw := `{"staging_area": {"name": "Downtown"}, "venues": []}`

	got, err := Object(raw)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(got))
}

func TestObject_FencedBlock(t *testing.T) {
	raw := "Here is the plan you asked for:\n```json\n{\"venues\": [{\"name\": \"Airport\"}]}\n```\nLet me know if you need changes."

	got, err := Object(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"venues": [{"name": "Airport"}]}`, string(got))
}

func TestObject_FencedBlockNoLanguage(t *testing.T) {
	raw := "```\n{\"key\": \"value\"}\n```"

	got, err := Object(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key": "value"}`, string(got))
}

func TestObject_BalancedBlockInProse(t *testing.T) {
	raw := `Based on current conditions, I recommend the following: {"staging_area": {"name": "Plaza", "address": "100 Main St"}, "venues": []} — this should maximize earnings.`

	got, err := Object(raw)
	require.NoError(t, err)

	var plan struct {
		StagingArea struct {
			Name string `json:"name"`
		} `json:"staging_area"`
	}
	require.NoError(t, json.Unmarshal(got, &plan))
	assert.Equal(t, "Plaza", plan.StagingArea.Name)
}

func TestObject_BracesInsideStrings(t *testing.T) {
	raw := `prose {"note": "a } inside a string", "nested": {"ok": true}} trailing`

	got, err := Object(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"note": "a } inside a string", "nested": {"ok": true}}`, string(got))
}

func TestObject_EscapedQuotes(t *testing.T) {
	raw := `{"quote": "she said \"go\" and left"}`

	got, err := Object(raw)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(got))
}

func TestObject_NoJSON(t *testing.T) {
	_, err := Object("just prose, no structure here")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestObject_Empty(t *testing.T) {
	_, err := Object("   ")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestObject_UnbalancedBraces(t *testing.T) {
	_, err := Object(`{"truncated": "respon`)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestObject_ArrayRejected(t *testing.T) {
	// Stage payloads are always objects; a bare array is not accepted.
	_, err := Object(`[1, 2, 3]`)
	assert.ErrorIs(t, err, ErrNoJSON)
}
