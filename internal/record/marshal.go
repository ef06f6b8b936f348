package record

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// delimiter separates the YAML header from the free-text body.
const delimiter = "---"

// Marshal serializes a record to its on-disk form:
//
//	---
//	<yaml header, including "id">
//	---
//	<body>
//
// yaml.v3 emits map keys in sorted order, so output is deterministic
// for golden comparison. The body is written verbatim after the closing
// delimiter; an empty body produces a trailing delimiter only.
func Marshal(r *Record) ([]byte, error) {
	header := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		if k == "id" {
			continue // ID is authoritative on the struct
		}
		header[k] = v
	}
	header["id"] = r.ID

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	buf.WriteString(delimiter + "\n")
	buf.WriteString(r.Body)
	return buf.Bytes(), nil
}

// Unmarshal parses the on-disk form back into a record of the given type.
//
// The header's "id" key becomes the record ID and is removed from Fields,
// so Marshal(Unmarshal(data)) is byte-identical and the field map mirrors
// what Marshal received.
func Unmarshal(typ string, data []byte) (*Record, error) {
	text := string(data)
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, fmt.Errorf("unmarshal %s record: missing header delimiter", typ)
	}
	rest := text[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter+"\n")
	var headerText, body string
	switch {
	case end >= 0:
		headerText = rest[:end+1]
		body = rest[end+len(delimiter)+2:]
	case strings.HasSuffix(rest, "\n"+delimiter):
		headerText = rest[:len(rest)-len(delimiter)]
	default:
		return nil, fmt.Errorf("unmarshal %s record: missing closing delimiter", typ)
	}

	fields := make(map[string]any)
	if err := yaml.Unmarshal([]byte(headerText), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal %s record header: %w", typ, err)
	}

	id, _ := fields["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("unmarshal %s record: header has no id", typ)
	}
	delete(fields, "id")

	return &Record{Type: typ, ID: id, Fields: fields, Body: body}, nil
}
