package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoder_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	enc := NewEncoder(64)
	enc.String("hello")
	enc.String("")
	enc.Bool(true)
	enc.Int(-42)
	enc.Int64(1 << 40)
	enc.Float32(0.25)
	enc.Time(now)
	enc.Time(time.Time{})
	enc.Duration(90 * time.Second)
	enc.Strings([]string{"a", "b"})
	enc.StringMap(map[string]string{"z": "1", "a": "2"})
	enc.Vector([]float32{0.1, 0.2, 0.3})

	dec := NewDecoder(enc.Bytes())
	assert.Equal(t, "hello", dec.String())
	assert.Equal(t, "", dec.String())
	assert.True(t, dec.Bool())
	assert.Equal(t, -42, dec.Int())
	assert.Equal(t, int64(1<<40), dec.Int64())
	assert.Equal(t, float32(0.25), dec.Float32())
	assert.True(t, now.Equal(dec.Time()))
	assert.True(t, dec.Time().IsZero())
	assert.Equal(t, 90*time.Second, dec.Duration())
	assert.Equal(t, []string{"a", "b"}, dec.Strings())
	assert.Equal(t, map[string]string{"z": "1", "a": "2"}, dec.StringMap())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, dec.Vector())
	require.NoError(t, dec.Err())
}

func TestDecoder_Truncated(t *testing.T) {
	enc := NewEncoder(16)
	enc.String("some longer value")
	data := enc.Bytes()

	dec := NewDecoder(data[:3])
	_ = dec.String()
	assert.Error(t, dec.Err())

	// Errors are sticky
	assert.Equal(t, 0, dec.Int())
	assert.Error(t, dec.Err())
}

func TestDecoder_EmptyCollections(t *testing.T) {
	enc := NewEncoder(8)
	enc.Strings(nil)
	enc.StringMap(nil)
	enc.Vector(nil)

	dec := NewDecoder(enc.Bytes())
	assert.Nil(t, dec.Strings())
	assert.Nil(t, dec.StringMap())
	assert.Nil(t, dec.Vector())
	require.NoError(t, dec.Err())
}

func TestStringMap_DeterministicEncoding(t *testing.T) {
	m := map[string]string{"c": "3", "a": "1", "b": "2"}
	first := NewEncoder(0)
	first.StringMap(m)
	for i := 0; i < 10; i++ {
		again := NewEncoder(0)
		again.StringMap(m)
		assert.Equal(t, first.Bytes(), again.Bytes())
	}
}
