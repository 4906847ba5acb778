package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		dataset *Dataset
		ok      bool
	}{
		{"valid", &Dataset{Columns: []string{"Name", "Email"}, Rows: [][]any{{"Alice", "a@x.com"}}}, true},
		{"no rows", NewDataset("Name"), true},
		{"no columns", NewDataset(), true},
		{"nil", nil, false},
		{"duplicate column", NewDataset("Name", "Name"), false},
		{"blank column", NewDataset("Name", ""), false},
		{"short row", &Dataset{Columns: []string{"Name", "Email"}, Rows: [][]any{{"Alice"}}}, false},
		{"long row", &Dataset{Columns: []string{"Name"}, Rows: [][]any{{"Alice", "a@x.com"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dataset.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, MalformedInput, KindOf(err))
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		in       any
		expected any
	}{
		{nil, nil},
		{"text", "text"},
		{int(7), int64(7)},
		{int32(-7), int64(-7)},
		{uint16(9), int64(9)},
		{float32(1.5), float64(1.5)},
		{[]byte("raw"), "raw"},
		{json.Number("42"), int64(42)},
		{json.Number("4.25"), 4.25},
		{true, true},
		{now, now},
		{&now, now},
		{map[string]any{"a": 1}, `{"a":1}`},
		{[]string{"x", "y"}, `["x","y"]`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Normalize(tt.in), "Normalize(%#v)", tt.in)
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("fetching users (%w)", ErrSourceUnavailable("graph unavailable (%w)", cause))

	assert.Equal(t, SourceUnavailable, KindOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, &Error{Kind: SourceUnavailable}))
	assert.False(t, errors.Is(err, &Error{Kind: SourceQueryError}))
	assert.Equal(t, Unknown, KindOf(cause))
	assert.Equal(t, "SourceUnavailable", KindOf(err).String())
}

func TestPairedColumn(t *testing.T) {
	column, ok := PairedColumn("Email_Y")
	assert.True(t, ok)
	assert.Equal(t, "Email", column)

	_, ok = PairedColumn("_Y")
	assert.False(t, ok)

	_, ok = PairedColumn("Email")
	assert.False(t, ok)

	assert.Equal(t, "Email_Y", MarkerFor("Email"))
}

func TestIsAffirmative(t *testing.T) {
	assert.True(t, IsAffirmative("Y"))
	assert.True(t, IsAffirmative(" Y "))
	assert.False(t, IsAffirmative("y"))
	assert.False(t, IsAffirmative("N"))
	assert.False(t, IsAffirmative(""))
	assert.False(t, IsAffirmative(nil))
	assert.False(t, IsAffirmative(int64(1)))
	assert.False(t, IsAffirmative(true))
}
