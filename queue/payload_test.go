package queue

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_PreservesInsertionOrder(t *testing.T) {
	p := NewPayload().
		Set("zeta", 1).
		Set("alpha", 2).
		Set("mid", 3)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, p.Keys())

	// Overwriting keeps the original position
	p.Set("zeta", 10)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, p.Keys())
	n, ok := p.GetInt("zeta")
	require.True(t, ok)
	assert.Equal(t, int64(10), n)

	data, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":10,"alpha":2,"mid":3}`, string(data))
}

func TestPayload_Normalization(t *testing.T) {
	p := NewPayload().
		Set("int", 7).
		Set("uint", uint32(8)).
		Set("float32", float32(0.5)).
		Set("strings", []string{"a", "b"}).
		Set("map", map[string]any{"b": 2, "a": 1}).
		Set("typed", map[string]int{"x": 1}).
		Set("when", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)).
		Set("number", json.Number("12"))

	v, _ := p.Get("int")
	assert.IsType(t, int64(0), v)
	v, _ = p.Get("uint")
	assert.Equal(t, int64(8), v)
	v, _ = p.Get("float32")
	assert.Equal(t, 0.5, v)
	v, _ = p.Get("strings")
	assert.Equal(t, []any{"a", "b"}, v)

	nested, ok := p.GetPayload("map")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, nested.Keys())

	typed, ok := p.GetPayload("typed")
	require.True(t, ok)
	assert.Equal(t, 1, typed.Len())

	when, ok := p.GetString("when")
	require.True(t, ok)
	assert.Equal(t, "2025-01-02T03:04:05Z", when)

	n, ok := p.GetInt("number")
	require.True(t, ok)
	assert.Equal(t, int64(12), n)
}

func TestPayload_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload *Payload
	}{
		{"empty", NewPayload()},
		{"scalars", NewPayload().Set("s", "text").Set("b", false).Set("n", nil).Set("i", -5).Set("f", 2.0)},
		{"nested", NewPayload().
			Set("outer", NewPayload().Set("inner", []any{1, 2.5, "x", nil, true})).
			Set("list", []any{NewPayload().Set("k", "v"), []any{}})},
		{"unicode", NewPayload().Set("ключ", "значение   \"quoted\"")},
		{"large numbers", NewPayload().Set("big", int64(1)<<62).Set("tiny", 1e-300).Set("huge", 1e300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.payload.MarshalJSON()
			require.NoError(t, err)

			decoded := NewPayload()
			require.NoError(t, decoded.UnmarshalJSON(data))
			assert.True(t, tt.payload.Equal(decoded), "payload mismatch: %s", data)
		})
	}
}

func TestPayload_LargeUnsignedKeepsSign(t *testing.T) {
	p := NewPayload().Set("max", uint64(math.MaxUint64)).Set("fits", uint64(math.MaxInt64))

	v, _ := p.Get("max")
	assert.Equal(t, float64(math.MaxUint64), v)
	fits, ok := p.GetInt("fits")
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), fits)

	data, err := p.MarshalJSON()
	require.NoError(t, err)
	decoded := NewPayload()
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, p.Equal(decoded), "payload mismatch: %s", data)
}

func TestPayload_RejectsInvalidUTF8(t *testing.T) {
	_, err := NewPayload().Set("bad", "\xff\xfe").MarshalJSON()
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewPayload().Set("\xff", "value").MarshalJSON()
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = MarshalJob(NewJob("embed", NewPayload().Set("nested", []any{"ok", "\xc3"})))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPayload_FloatKeepsType(t *testing.T) {
	p := NewPayload().Set("f", 3.0).Set("i", 3)
	data, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"f":3.0,"i":3}`, string(data))

	decoded := NewPayload()
	require.NoError(t, decoded.UnmarshalJSON(data))
	f, _ := decoded.Get("f")
	i, _ := decoded.Get("i")
	assert.IsType(t, float64(0), f)
	assert.IsType(t, int64(0), i)
}

func TestPayload_UnmarshalRejectsNonObject(t *testing.T) {
	p := NewPayload()
	assert.ErrorIs(t, p.UnmarshalJSON([]byte(`[1,2]`)), ErrInvalidPayload)
	assert.ErrorIs(t, p.UnmarshalJSON([]byte(`{"a":`)), ErrInvalidPayload)
}

func TestPayload_CloneIsDeep(t *testing.T) {
	inner := NewPayload().Set("x", 1)
	p := NewPayload().Set("inner", inner).Set("list", []any{"a"})

	c := p.Clone()
	inner.Set("x", 2)

	got, _ := c.GetPayload("inner")
	n, _ := got.GetInt("x")
	assert.Equal(t, int64(1), n)
	assert.True(t, c.Equal(c.Clone()))
}

func TestPayload_Delete(t *testing.T) {
	p := NewPayload().Set("a", 1).Set("b", 2)
	p.Delete("a")
	p.Delete("missing")
	assert.Equal(t, []string{"b"}, p.Keys())
	assert.False(t, p.Has("a"))
}

func TestPayload_Map(t *testing.T) {
	p := NewPayload().Set("n", 1).Set("nested", NewPayload().Set("f", 1.5))
	m := p.Map()
	assert.Equal(t, json.Number("1"), m["n"])
	assert.Equal(t, map[string]any{"f": json.Number("1.5")}, m["nested"])
}
