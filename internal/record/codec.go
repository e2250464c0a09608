// Package record translates between model.LogRecord and its XML element
// in the backing document.
package record

import (
	"encoding/xml"

	"github.com/tinytelemetry/displaylog/internal/model"
)

// Node is one <log> element. Optional attributes are pointers so that an
// absent field is omitted from the element while a present empty value is
// still written as attr="".
type Node struct {
	XMLName xml.Name `xml:"log"`
	Time    string   `xml:"time,attr"`
	IP      string   `xml:"ip,attr"`
	Battery *string  `xml:"battery,attr,omitempty"`
	Reset   *string  `xml:"reset,attr,omitempty"`
	Screen  *string  `xml:"screen,attr,omitempty"`

	// Extra keeps attributes written by other tools so a rewrite preserves them.
	Extra []xml.Attr `xml:",any,attr"`
}

// PlainExtra returns the unprefixed attributes of attrs. encoding/xml resolves
// a prefix to its namespace URI on decode and cannot write the prefix back,
// so namespace declarations and namespaced attributes are dropped.
func PlainExtra(attrs []xml.Attr) []xml.Attr {
	var out []xml.Attr
	for _, a := range attrs {
		if a.Name.Space != "" || a.Name.Local == "xmlns" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Encode builds the element for rec. No validation is applied.
func Encode(rec model.LogRecord) Node {
	return Node{
		XMLName: xml.Name{Local: model.RecordTag},
		Time:    rec.Time,
		IP:      rec.IP,
		Battery: cloneString(rec.Battery),
		Reset:   cloneString(rec.Reset),
		Screen:  cloneString(rec.Screen),
	}
}

// Decode is the inverse of Encode. Extra attributes are not part of the record.
func Decode(n Node) model.LogRecord {
	return model.LogRecord{
		Time:    n.Time,
		IP:      n.IP,
		Battery: cloneString(n.Battery),
		Reset:   cloneString(n.Reset),
		Screen:  cloneString(n.Screen),
	}
}

// DecodeAll decodes nodes in order.
func DecodeAll(nodes []Node) []model.LogRecord {
	out := make([]model.LogRecord, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Decode(n))
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
