package kpi

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPyFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{101, "101.0"},
		{0.5, "0.5"},
		{1.25, "1.25"},
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{-3, "-3.0"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{1.5e16, "1.5e+16"},
		{123456.789, "123456.789"},
		{0.1 + 0.2, "0.30000000000000004"},
		{math.Inf(1), "inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatPyFloat(tt.in))
	}
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	assert.True(t, FromAny(nil).IsNull())
	assert.Equal(t, KindBool, FromAny(true).Kind())
	assert.Equal(t, KindString, FromAny("x").Kind())
	assert.Equal(t, KindNumber, FromAny(json.Number("1.5")).Kind())
	assert.Equal(t, KindOther, FromAny([]any{"a"}).Kind())
	assert.True(t, FromAny(json.Number("1e400")).IsNull())

	n, _ := FromAny(float64(4)).Literal()
	assert.Equal(t, "4", string(n))
	n, _ = FromAny(4.25).Literal()
	assert.Equal(t, "4.25", string(n))
}

func TestValue_Equal(t *testing.T) {
	t.Parallel()

	assert.True(t, Null.Equal(Null))
	assert.True(t, Int(100).Equal(Float(100)))
	assert.False(t, Int(1).Equal(Bool(true)))
	assert.False(t, String("1").Equal(Int(1)))
	assert.True(t, Pair(Int(1), String("a")).Equal(Pair(Int(1), String("a"))))
	assert.False(t, Pair(Int(1), String("a")).Equal(Pair(String("a"), Int(1))))
	assert.True(t, FromAny(map[string]any{"x": "y"}).Equal(FromAny(map[string]any{"x": "y"})))
}

func TestValue_MarshalKeepsAmpersand(t *testing.T) {
	t.Parallel()

	b, err := String("avg of 1 & 2 <ok>").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"avg of 1 & 2 <ok>"`, string(b))

	b, err = Pair(String("a & b"), Null).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `["a & b",null]`, string(b))
}

func TestValue_MarshalRejectsBadLiteral(t *testing.T) {
	t.Parallel()

	for _, lit := range []string{"12,5", "inf", "-inf", "nan", "1e400", "0x10"} {
		_, err := Number(json.Number(lit)).MarshalJSON()
		assert.Error(t, err, lit)
	}
}

func TestValue_PairSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	b, err := Pair(String("strong"), Int(1200)).MarshalJSON()
	require.NoError(t, err)

	var v Value
	require.NoError(t, json.Unmarshal(b, &v))
	require.Equal(t, KindPair, v.Kind())
	first, second, ok := v.Pair()
	require.True(t, ok)
	s, _ := first.Text()
	assert.Equal(t, "strong", s)
	n, _ := second.Literal()
	assert.Equal(t, "1200", string(n))
	assert.True(t, v.Equal(Pair(String("strong"), Int(1200))))
}

func TestValue_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var v Value
	require.NoError(t, json.Unmarshal([]byte(`12.50`), &v))
	n, ok := v.Literal()
	require.True(t, ok)
	assert.Equal(t, "12.50", string(n))

	f, ok := v.Float64()
	require.True(t, ok)
	assert.InDelta(t, 12.5, f, 1e-9)
}
