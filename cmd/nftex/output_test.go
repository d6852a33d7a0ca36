package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJQ(t *testing.T) {
	doc := map[string]interface{}{
		"address": "0xA1",
		"listed": []map[string]string{
			{"name": "Alpha"},
			{"name": "Beta"},
		},
	}

	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{name: "strings are raw", filter: ".address", want: "0xA1\n"},
		{name: "numbers are json", filter: ".listed | length", want: "2\n"},
		{name: "every result is written", filter: ".listed[].name", want: "Alpha\nBeta\n"},
		{name: "objects are indented", filter: ".listed[0]", want: "{\n  \"name\": \"Alpha\"\n}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := compileJQ(tt.filter)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, writeJQ(&buf, code, doc))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestCompileJQ_Invalid(t *testing.T) {
	_, err := compileJQ(".listed[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestWriteJQ_RuntimeError(t *testing.T) {
	code, err := compileJQ(".address | length + \"x\"")
	require.NoError(t, err)

	var buf bytes.Buffer
	err = writeJQ(&buf, code, map[string]string{"address": "0xA1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq filter failed")
}
