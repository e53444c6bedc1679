package core

import (
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Encoder appends MUS-encoded values to a growing buffer.
// Records are encoded as a fixed sequence of fields; the decoder must read
// them back in the same order.
type Encoder struct {
	bs []byte
}

// NewEncoder creates an Encoder with an initial capacity hint.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{bs: make([]byte, 0, capacity)}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.bs
}

func (e *Encoder) grow(n int) []byte {
	e.bs = slices.Grow(e.bs, n)
	start := len(e.bs)
	e.bs = e.bs[:start+n]
	return e.bs[start:]
}

func (e *Encoder) String(v string) {
	ord.String.Marshal(v, e.grow(ord.String.Size(v)))
}

func (e *Encoder) Bool(v bool) {
	ord.Bool.Marshal(v, e.grow(ord.Bool.Size(v)))
}

func (e *Encoder) Int(v int) {
	varint.Int.Marshal(v, e.grow(varint.Int.Size(v)))
}

func (e *Encoder) Int64(v int64) {
	varint.Int64.Marshal(v, e.grow(varint.Int64.Size(v)))
}

func (e *Encoder) Float32(v float32) {
	bits := math.Float32bits(v)
	varint.Uint32.Marshal(bits, e.grow(varint.Uint32.Size(bits)))
}

// Time encodes t with microsecond precision. The zero time round-trips as zero.
func (e *Encoder) Time(t time.Time) {
	if t.IsZero() {
		e.Bool(false)
		return
	}
	e.Bool(true)
	e.Int64(t.UnixMicro())
}

func (e *Encoder) Duration(d time.Duration) {
	e.Int64(int64(d))
}

func (e *Encoder) Strings(vs []string) {
	e.Int(len(vs))
	for _, v := range vs {
		e.String(v)
	}
}

// StringMap encodes m with keys in sorted order so equal maps encode identically.
func (e *Encoder) StringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.Int(len(keys))
	for _, k := range keys {
		e.String(k)
		e.String(m[k])
	}
}

func (e *Encoder) Vector(v []float32) {
	e.Int(len(v))
	for _, f := range v {
		e.Float32(f)
	}
}

// Decoder reads values written by Encoder. The first error is sticky;
// subsequent reads return zero values and Err reports it.
type Decoder struct {
	bs  []byte
	err error
}

// NewDecoder creates a Decoder over bs.
func NewDecoder(bs []byte) *Decoder {
	return &Decoder{bs: bs}
}

// Err returns the first decoding error, if any.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) advance(n int, err error) bool {
	if err != nil {
		d.err = err
		return false
	}
	d.bs = d.bs[n:]
	return true
}

func (d *Decoder) String() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs)
	if !d.advance(n, err) {
		return ""
	}
	return v
}

func (d *Decoder) Bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs)
	if !d.advance(n, err) {
		return false
	}
	return v
}

func (d *Decoder) Int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs)
	if !d.advance(n, err) {
		return 0
	}
	return v
}

func (d *Decoder) Int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs)
	if !d.advance(n, err) {
		return 0
	}
	return v
}

func (d *Decoder) Float32() float32 {
	if d.err != nil {
		return 0
	}
	bits, n, err := varint.Uint32.Unmarshal(d.bs)
	if !d.advance(n, err) {
		return 0
	}
	return math.Float32frombits(bits)
}

func (d *Decoder) Time() time.Time {
	if !d.Bool() {
		return time.Time{}
	}
	return time.UnixMicro(d.Int64()).UTC()
}

func (d *Decoder) Duration() time.Duration {
	return time.Duration(d.Int64())
}

// length reads a collection length and rejects values that cannot fit in the remaining input.
func (d *Decoder) length() int {
	n := d.Int()
	if d.err != nil {
		return 0
	}
	if n < 0 || n > len(d.bs) {
		d.err = ErrTruncatedData
		return 0
	}
	return n
}

func (d *Decoder) Strings() []string {
	n := d.length()
	if n == 0 {
		return nil
	}
	vs := make([]string, n)
	for i := range vs {
		vs[i] = d.String()
	}
	return vs
}

func (d *Decoder) StringMap() map[string]string {
	n := d.length()
	if n == 0 {
		return nil
	}
	m := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k := d.String()
		m[k] = d.String()
	}
	return m
}

func (d *Decoder) Vector() []float32 {
	n := d.length()
	if n == 0 {
		return nil
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = d.Float32()
	}
	return v
}
