package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Payload is an ordered string-keyed map of JSON-compatible values.
//
// Values are normalized on Set to one of: nil, bool, string, int64, float64,
// []any, or *Payload. Go maps become nested Payloads with sorted keys. The JSON
// encoding always writes floats with a fraction or exponent, so integers and
// floats survive a round trip with their types intact. Unsigned integers above
// math.MaxInt64 are stored as float64, and strings must be valid UTF-8 to
// encode.
type Payload struct {
	keys   []string
	values map[string]any
}

// NewPayload creates an empty Payload.
func NewPayload() *Payload {
	return &Payload{values: make(map[string]any)}
}

// PayloadFrom builds a Payload from m with keys in sorted order.
func PayloadFrom(m map[string]any) *Payload {
	p := NewPayload()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

// Set stores value under key, keeping the original position of an existing key.
// Returns p so calls can be chained.
func (p *Payload) Set(key string, value any) *Payload {
	p.put(key, normalize(value))
	return p
}

func (p *Payload) put(key string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key.
func (p *Payload) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present, including keys holding null.
func (p *Payload) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// GetString returns the string stored under key.
func (p *Payload) GetString(key string) (string, bool) {
	v, _ := p.Get(key)
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the integer stored under key. Floats with no fractional part
// are accepted.
func (p *Payload) GetInt(key string) (int64, bool) {
	v, _ := p.Get(key)
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

// GetBool returns the bool stored under key.
func (p *Payload) GetBool(key string) (bool, bool) {
	v, _ := p.Get(key)
	b, ok := v.(bool)
	return b, ok
}

// GetPayload returns the nested Payload stored under key.
func (p *Payload) GetPayload(key string) (*Payload, bool) {
	v, _ := p.Get(key)
	n, ok := v.(*Payload)
	return n, ok
}

// Delete removes key.
func (p *Payload) Delete(key string) {
	if p == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == key })
	if len(p.keys) == 0 {
		p.keys = nil
	}
}

// Keys returns the keys in insertion order.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

// Len returns the number of keys.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns a deep copy.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := &Payload{values: make(map[string]any, len(p.values))}
	for _, k := range p.keys {
		c.put(k, cloneValue(p.values[k]))
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Payload:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// Equal reports whether p and other hold the same keys in the same order with
// equal values.
func (p *Payload) Equal(other *Payload) bool {
	if p.Len() != other.Len() {
		return false
	}
	for i, k := range p.Keys() {
		if other.keys[i] != k {
			return false
		}
		if !valuesEqual(p.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case *Payload:
		y, ok := b.(*Payload)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// Values converts the payload to plain Go maps and slices holding the
// normalized scalar types.
func (p *Payload) Values() map[string]any {
	out := make(map[string]any, p.Len())
	for _, k := range p.Keys() {
		out[k] = nativeValue(p.values[k])
	}
	return out
}

func nativeValue(v any) any {
	switch t := v.(type) {
	case *Payload:
		return t.Values()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = nativeValue(e)
		}
		return out
	}
	return v
}

// Map converts the payload to plain Go maps and slices. Numbers are returned
// as json.Number, the representation JSON schema validators expect.
func (p *Payload) Map() map[string]any {
	out := make(map[string]any, p.Len())
	for _, k := range p.Keys() {
		out[k] = plainValue(p.values[k])
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *Payload:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case float64:
		return json.Number(formatFloat(t))
	}
	return v
}

func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool, string, int64, float64:
		return t
	case *Payload:
		if t == nil {
			return nil
		}
		return t
	case Payload:
		return t.Clone()
	case map[string]any:
		return PayloadFrom(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return unsignedValue(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return unsignedValue(t)
	case float32:
		return float64(t)
	case json.Number:
		return numberValue(t.String())
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return int64(t)
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return PayloadFrom(m)
		}
	}

	// Fall back to the value's JSON form.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	decoded, err := decodeJSONValue(data)
	if err != nil {
		return fmt.Sprint(v)
	}
	return decoded
}

// unsignedValue keeps u's sign: values above math.MaxInt64 become float64.
func unsignedValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// MarshalJSON encodes the payload as a JSON object in key order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the payload contents with the decoded JSON object.
func (p *Payload) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONValue(data)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*p = Payload{values: make(map[string]any)}
	case *Payload:
		*p = *t
	default:
		return fmt.Errorf("%w: expected object, got %T", ErrInvalidPayload, v)
	}
	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		if err := writeString(buf, t); err != nil {
			return err
		}
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: unsupported float value %v", ErrInvalidPayload, t)
		}
		buf.WriteString(formatFloat(t))
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Payload:
		if t == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeValue(buf, t.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: unsupported value type %T", ErrInvalidPayload, v)
	}
	return nil
}

// writeString rejects invalid UTF-8, which JSON would silently replace.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: string %q is not valid UTF-8", ErrInvalidPayload, s)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// formatFloat writes f so that it always reads back as a float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func numberValue(s string) any {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return f
}

func decodeJSONValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case json.Number:
		return numberValue(t.String()), nil
	case string, bool, nil:
		return t, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func decodeObject(dec *json.Decoder) (*Payload, error) {
	p := NewPayload()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		p.put(key, v)
	}
	// Closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
