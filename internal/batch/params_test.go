package batch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringOrArray(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		paramName string
		want      []string
		wantErr   bool
	}{
		{
			name:      "single string",
			input:     "18c2f0a1b2",
			paramName: "threadId",
			want:      []string{"18c2f0a1b2"},
		},
		{
			name:      "array of strings",
			input:     []interface{}{"id1", "id2", "id3"},
			paramName: "threadId",
			want:      []string{"id1", "id2", "id3"},
		},
		{
			name:      "typed string slice",
			input:     []string{"id1", "id2"},
			paramName: "threadId",
			want:      []string{"id1", "id2"},
		},
		{
			name:      "nil input",
			input:     nil,
			paramName: "threadId",
			wantErr:   true,
		},
		{
			name:      "empty string",
			input:     "",
			paramName: "threadId",
			wantErr:   true,
		},
		{
			name:      "empty array",
			input:     []interface{}{},
			paramName: "threadId",
			wantErr:   true,
		},
		{
			name:      "array with non-string",
			input:     []interface{}{"id1", 123, "id3"},
			paramName: "threadId",
			wantErr:   true,
		},
		{
			name:      "array with empty string",
			input:     []interface{}{"id1", "", "id3"},
			paramName: "threadId",
			wantErr:   true,
		},
		{
			name:      "invalid type",
			input:     123,
			paramName: "threadId",
			wantErr:   true,
		},
		{
			name:      "JSON string array",
			input:     `["id1", "id2", "id3"]`,
			paramName: "threadId",
			want:      []string{"id1", "id2", "id3"},
		},
		{
			name:      "JSON string empty array",
			input:     `[]`,
			paramName: "threadId",
			wantErr:   true,
		},
		{
			name:      "invalid JSON string",
			input:     `[invalid json`,
			paramName: "threadId",
			want:      []string{`[invalid json`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, tt.paramName)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatResults(t *testing.T) {
	report := &Report{
		Total:     3,
		Processed: 3,
		Chunks:    1,
		Results:   Totals{Labeled: 1, Skipped: 1, Failed: 1},
		Items: []Result{
			NewLabeledResult("id1", "Work", 0.95),
			NewSkippedResult("id2", "low_confidence", 0.4),
			{ID: "id3", Outcome: OutcomeFailed, Error: "Something went wrong"},
		},
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(FormatResults(report)), &decoded))

	assert.EqualValues(t, 3, decoded["processedCount"])
	results := decoded["results"].(map[string]any)
	assert.EqualValues(t, 1, results["labeled"])
	assert.EqualValues(t, 1, results["skipped"])
	assert.EqualValues(t, 1, results["failed"])
	assert.Len(t, decoded["items"], 3)
}
