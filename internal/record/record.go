package record

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is a single stored entity: a content record or a relation.
//
// Fields holds the structured header (nested maps and sequences allowed);
// Body holds the optional free-text payload. The ID also appears as the
// "id" key of the serialized header so files are self-describing.
type Record struct {
	// Type is the content or relation type name ("post", "group_user").
	// It is conveyed by the storage directory, not the header.
	Type string

	// ID is the type-prefixed unique identifier.
	ID string

	// Fields is the structured header.
	Fields map[string]any

	// Body is the optional free-text body.
	Body string
}

// New creates a record of the given type with an empty field map.
func New(typ, id string) *Record {
	return &Record{Type: typ, ID: id, Fields: make(map[string]any)}
}

// Clone returns a deep copy of the record's header and body.
func (r *Record) Clone() *Record {
	return &Record{Type: r.Type, ID: r.ID, Fields: cloneValue(r.Fields).(map[string]any), Body: r.Body}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Set assigns a header field and returns the record for chaining.
func (r *Record) Set(key string, value any) *Record {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[key] = value
	return r
}

// Has reports whether the header field exists and is non-nil.
func (r *Record) Has(key string) bool {
	v, ok := r.Fields[key]
	return ok && v != nil
}

// String returns the field as a string, or "" if absent or not a string.
func (r *Record) String(key string) string {
	if s, ok := r.Fields[key].(string); ok {
		return s
	}
	return ""
}

// Bool returns the field as a bool, or false if absent or not a bool.
func (r *Record) Bool(key string) bool {
	if b, ok := r.Fields[key].(bool); ok {
		return b
	}
	return false
}

// Int returns the field as an int. YAML decodes whole numbers as int,
// so float values are truncated toward zero.
func (r *Record) Int(key string) (int, bool) {
	switch v := r.Fields[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Float returns the field as a float64. Whole numbers round-trip through
// YAML as ints, so both numeric kinds are accepted.
func (r *Record) Float(key string) (float64, bool) {
	switch v := r.Fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Time returns the field as a time.Time. YAML resolves RFC 3339 strings
// to time.Time on decode; string values are parsed as a fallback.
func (r *Record) Time(key string) (time.Time, bool) {
	switch v := r.Fields[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Deleted reports whether the record carries a soft-delete timestamp.
func (r *Record) Deleted() bool {
	return r.Has("deleted_at")
}

// IDGenerator produces unique record IDs.
// Implemented by PrefixedGenerator (production) and the deterministic
// sequence generator in testutil.
type IDGenerator interface {
	NewID(prefix string) string
}

// PrefixedGenerator generates type-prefixed UUIDv7 IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so IDs within
// one type directory sort by creation time. Format:
// "post_018f3c2a9b4e7d0c8a6f5e4d3c2b1a09" (prefix + 32 hex chars).
//
// Thread-safety: stateless and safe for concurrent use.
type PrefixedGenerator struct{}

// NewID creates a new prefixed ID.
// Panics if UUID generation fails (should never happen in practice).
func (PrefixedGenerator) NewID(prefix string) string {
	raw := uuid.Must(uuid.NewV7()).String()
	return prefix + "_" + strings.ReplaceAll(raw, "-", "")
}

// Prefix returns the type prefix of an ID, or "" if it has none.
func Prefix(id string) string {
	i := strings.LastIndex(id, "_")
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// Now returns the current UTC time truncated to whole seconds.
//
// Header timestamps are second-granular so they serialize as plain
// RFC 3339 strings and compare stably across a save/load round trip.
var Now = func() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// FixedNow replaces Now with a deterministic clock for tests and returns
// a restore function.
func FixedNow(t time.Time) (restore func()) {
	prev := Now
	Now = func() time.Time { return t }
	return func() { Now = prev }
}
