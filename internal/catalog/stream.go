package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Category is a live category from the upstream provider. Every upstream
// field survives a decode/encode round trip; only the ones the bridge reads
// are lifted into struct fields.
type Category struct {
	CategoryID   string
	CategoryName string

	fields map[string]json.RawMessage
}

// Stream is a live stream from the upstream provider. EPGChannelID is the only
// field the bridge writes; everything else is passed through as received.
type Stream struct {
	Name         string
	StreamID     string // decimal string; the wire value may be number or string
	CategoryID   string
	EPGChannelID string

	fields map[string]json.RawMessage
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.fields = m
	c.CategoryID = flexString(m["category_id"])
	c.CategoryName = flexString(m["category_name"])
	return nil
}

func (c Category) MarshalJSON() ([]byte, error) {
	out := cloneFields(c.fields)
	if _, ok := out["category_id"]; !ok {
		out["category_id"] = quote(c.CategoryID)
	}
	if _, ok := out["category_name"]; !ok {
		out["category_name"] = quote(c.CategoryName)
	}
	return json.Marshal(out)
}

func (s *Stream) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.fields = m
	s.Name = strings.TrimSpace(flexString(m["name"]))
	s.StreamID = flexString(m["stream_id"])
	s.CategoryID = flexString(m["category_id"])
	s.EPGChannelID = strings.TrimSpace(flexString(m["epg_channel_id"]))
	return nil
}

func (s Stream) MarshalJSON() ([]byte, error) {
	out := cloneFields(s.fields)
	if _, ok := out["name"]; !ok {
		out["name"] = quote(s.Name)
	}
	if _, ok := out["stream_id"]; !ok {
		if n, err := strconv.ParseInt(s.StreamID, 10, 64); err == nil {
			out["stream_id"] = json.RawMessage(strconv.FormatInt(n, 10))
		} else {
			out["stream_id"] = quote(s.StreamID)
		}
	}
	if _, ok := out["category_id"]; !ok {
		out["category_id"] = quote(s.CategoryID)
	}
	if s.EPGChannelID == "" {
		out["epg_channel_id"] = json.RawMessage("null")
	} else {
		out["epg_channel_id"] = quote(s.EPGChannelID)
	}
	return json.Marshal(out)
}

// FieldString returns the upstream value for key as a string ("" when absent).
func (s Stream) FieldString(key string) string {
	return flexString(s.fields[key])
}

// flexString reads a JSON scalar that providers send either as a number or a
// string. null, objects and arrays read as "".
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if json.Unmarshal(raw, &n) != nil {
			return ""
		}
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func cloneFields(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}
