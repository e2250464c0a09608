package logstore

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/tinytelemetry/displaylog/internal/model"
	"github.com/tinytelemetry/displaylog/internal/record"
)

// ErrMalformed reports a backing document that does not have the
// display/client shape. Load recovers from it by starting empty.
var ErrMalformed = errors.New("logstore: malformed document")

type documentXML struct {
	XMLName xml.Name    `xml:"display"`
	Clients []clientXML `xml:"client"`
}

type clientXML struct {
	Records []record.Node `xml:"log"`
}

// Document is the in-memory backing document: the single client bucket and
// its records in insertion order.
type Document struct {
	records []record.Node
}

// NewDocument returns an empty document (root plus one empty client).
func NewDocument() *Document {
	return &Document{}
}

// Parse decodes a backing document. Only the first client is kept, and
// only unprefixed attributes survive on its records.
func Parse(data []byte) (*Document, error) {
	var raw documentXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(raw.Clients) == 0 {
		return nil, fmt.Errorf("%w: no <%s> element", ErrMalformed, model.ClientTag)
	}
	records := raw.Clients[0].Records
	for i := range records {
		records[i].XMLName = xml.Name{Local: model.RecordTag}
		records[i].Extra = record.PlainExtra(records[i].Extra)
	}
	return &Document{records: records}, nil
}

// Len returns the number of records under the client.
func (d *Document) Len() int {
	return len(d.records)
}

// Records decodes all records, oldest first.
func (d *Document) Records() []model.LogRecord {
	return record.DecodeAll(d.records)
}

// Last returns the newest record.
func (d *Document) Last() (model.LogRecord, bool) {
	if len(d.records) == 0 {
		return model.LogRecord{}, false
	}
	return record.Decode(d.records[len(d.records)-1]), true
}

// Marshal renders the document with an XML declaration and two-space indentation.
func (d *Document) Marshal() ([]byte, error) {
	raw := documentXML{
		Clients: []clientXML{{Records: d.records}},
	}
	body, err := xml.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("logstore: marshal document: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (d *Document) push(n record.Node) {
	d.records = append(d.records, n)
}

// evictOldest drops the n oldest records from the client container.
func (d *Document) evictOldest(n int) {
	if n <= 0 {
		return
	}
	if n >= len(d.records) {
		d.records = nil
		return
	}
	kept := make([]record.Node, len(d.records)-n, cap(d.records))
	copy(kept, d.records[n:])
	d.records = kept
}
