package jsonextract_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/jsonextract"
)

func TestFromResponse_JSONFence(t *testing.T) {
	resp := "Here is the analysis:\n```json\n{\"a\": 1}\n```\nThanks."
	got := jsonextract.FromResponse(resp)
	assert.JSONEq(t, `{"a": 1}`, got)
}

func TestFromResponse_GenericFence(t *testing.T) {
	resp := "```\n{\"a\": 2}\n```"
	got := jsonextract.FromResponse(resp)
	assert.JSONEq(t, `{"a": 2}`, got)
}

func TestFromResponse_RawObject(t *testing.T) {
	resp := "sure thing: {\"a\": 3} -- done"
	got := jsonextract.FromResponse(resp)
	assert.JSONEq(t, `{"a": 3}`, got)
}

func TestFromResponse_TruncatedFence(t *testing.T) {
	resp := "```json\n{\"a\": 4, \"b\": [1,2"
	got := jsonextract.FromResponse(resp)
	assert.Equal(t, `{"a": 4, "b": [1,2`, got)
}

func TestRepairTruncated_ClosesOpenBraceAndBracket(t *testing.T) {
	input := `{"a": 1, "b": [1, 2`
	repaired, ok := jsonextract.RepairTruncated(input)
	require.True(t, ok)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(repaired), &v))
}

func TestRepairTruncated_ClosesOpenString(t *testing.T) {
	input := `{"a": "incomplete`
	repaired, ok := jsonextract.RepairTruncated(input)
	require.True(t, ok)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(repaired), &v))
}

func TestRepairTruncated_TrailingColonGetsNull(t *testing.T) {
	input := `{"a":`
	repaired, ok := jsonextract.RepairTruncated(input)
	require.True(t, ok)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(repaired), &v))
}

func TestRepairTruncated_AlreadyBalancedReturnsFalse(t *testing.T) {
	_, ok := jsonextract.RepairTruncated(`{"a": 1}`)
	assert.False(t, ok)
}

func TestRepairTruncated_NonJSONReturnsFalse(t *testing.T) {
	_, ok := jsonextract.RepairTruncated("not json at all")
	assert.False(t, ok)
}
