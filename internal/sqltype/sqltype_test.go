package sqltype

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSQL(t *testing.T) {
	tests := []struct {
		sqlType string
		want    Type
	}{
		{"BIGINT", TypeInteger},
		{"int(11)", TypeInteger},
		{"serial", TypeInteger},
		{"DECIMAL(10,2)", TypeFloat},
		{"double", TypeFloat},
		{"BOOLEAN", TypeBoolean},
		{"date", TypeDate},
		{"DATETIME", TypeDateTime},
		{"timestamptz", TypeDateTime},
		{"interval", TypeDuration},
		{"VARCHAR(255)", TypeString},
		{"json", TypeString},
		{"UNKNOWN_TYPE", TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			assert.Equal(t, tt.want, FromSQL(tt.sqlType))
		})
	}
}

func TestParse(t *testing.T) {
	typ, err := Parse("datetime")
	require.NoError(t, err)
	assert.Equal(t, TypeDateTime, typ)

	typ, err = Parse("VARCHAR(64)")
	require.NoError(t, err)
	assert.Equal(t, TypeString, typ)

	typ, err = Parse("Integer")
	require.NoError(t, err)
	assert.Equal(t, TypeInteger, typ)
	assert.Equal(t, "integer", typ.String())

	_, err = Parse("  ")
	assert.Error(t, err)
}

func TestCoerce_Integer(t *testing.T) {
	v, err := Coerce(TypeInteger, "19")
	require.NoError(t, err)
	assert.Equal(t, int64(19), v)

	v, err = Coerce(TypeInteger, float64(20))
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)

	v, err = Coerce(TypeInteger, json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = Coerce(TypeInteger, 1.5)
	assert.Error(t, err)

	_, err = Coerce(TypeInteger, "abc")
	assert.Error(t, err)
}

func TestCoerce_DateTime(t *testing.T) {
	want := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)

	for _, input := range []string{
		"2024-03-09T10:30:00Z",
		"2024-03-09T11:30:00+01:00",
		"2024-03-09T10:30:00",
		"2024-03-09 10:30:00",
	} {
		t.Run(input, func(t *testing.T) {
			v, err := Coerce(TypeDateTime, input)
			require.NoError(t, err)
			assert.True(t, want.Equal(v.(time.Time)), "got %v", v)
		})
	}

	_, err := Coerce(TypeDateTime, "last tuesday")
	assert.Error(t, err)
}

func TestCoerce_DateTruncatesTime(t *testing.T) {
	v, err := Coerce(TypeDate, "2024-03-09T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), v)
}

func TestCoerce_Duration(t *testing.T) {
	v, err := Coerce(TypeDuration, "1h30m")
	require.NoError(t, err)
	assert.Equal(t, 5400.0, v)

	v, err = Coerce(TypeDuration, "90")
	require.NoError(t, err)
	assert.Equal(t, 90.0, v)

	v, err = Coerce(TypeDuration, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 120.0, v)
}

func TestCoerce_Boolean(t *testing.T) {
	v, err := Coerce(TypeBoolean, "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Coerce(TypeBoolean, int64(0))
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestCoerce_NilPassesThrough(t *testing.T) {
	v, err := Coerce(TypeDateTime, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRender(t *testing.T) {
	ts := time.Date(2024, 3, 9, 11, 30, 5, 0, time.FixedZone("CET", 3600))

	v, err := Render(TypeDateTime, ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09T10:30:05Z", v)

	v, err = Render(TypeDate, ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", v)

	v, err = Render(TypeDuration, 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90.0, v)

	v, err = Render(TypeInteger, []byte("7"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = Render(TypeString, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestRender_UnexpectedType(t *testing.T) {
	_, err := Render(TypeString, struct{ X int }{1})
	assert.Error(t, err)

	_, err = Render(TypeDateTime, 12)
	assert.Error(t, err)
}

func TestParseNowMarker(t *testing.T) {
	m, ok := ParseNowMarker("current_timestamp")
	assert.True(t, ok)
	assert.Equal(t, CurrentTimestamp, m)

	_, ok = ParseNowMarker("2024-01-01")
	assert.False(t, ok)
}
