package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Status field names accepted from display clients.
const (
	FieldBattery = "battery"
	FieldReset   = "reset"
	FieldScreen  = "screen"
)

// StatusFields lists the client-supplied fields in attribute order.
var StatusFields = []string{FieldBattery, FieldReset, FieldScreen}

// Fields maps a status field name to its raw, unvalidated value.
// A key that is absent means the client did not send that field.
type Fields map[string]string

// LogRecord is one status snapshot as stored in the backing file.
// It is the canonical type for storage, transport (socket RPC), and display.
type LogRecord struct {
	Time    string  `json:"time"`
	IP      string  `json:"ip"`
	Battery *string `json:"battery,omitempty"`
	Reset   *string `json:"reset,omitempty"`
	Screen  *string `json:"screen,omitempty"`
}

// NewLogRecord stamps fields with the server-side time and peer address.
// Keys outside StatusFields are ignored. Values are copied verbatim except
// for bytes XML cannot carry, which become U+FFFD as they would on disk.
func NewLogRecord(now time.Time, addr string, fields Fields) LogRecord {
	rec := LogRecord{
		Time: now.Format(TimeLayout),
		IP:   XMLText(addr),
	}
	if v, ok := fields[FieldBattery]; ok {
		v = XMLText(v)
		rec.Battery = &v
	}
	if v, ok := fields[FieldReset]; ok {
		v = XMLText(v)
		rec.Reset = &v
	}
	if v, ok := fields[FieldScreen]; ok {
		v = XMLText(v)
		rec.Screen = &v
	}
	return rec
}

// XMLText replaces invalid UTF-8 and characters outside the XML 1.0 Char
// production with U+FFFD, the same substitution encoding/xml applies when
// it escapes an attribute value.
func XMLText(s string) string {
	clean := true
	for _, r := range s {
		if r == utf8.RuneError || !isXMLChar(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return utf8.RuneError
	}, s)
}

func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}

// Fields returns the optional payload of r as a Fields map.
func (r LogRecord) Fields() Fields {
	out := make(Fields, len(StatusFields))
	if r.Battery != nil {
		out[FieldBattery] = *r.Battery
	}
	if r.Reset != nil {
		out[FieldReset] = *r.Reset
	}
	if r.Screen != nil {
		out[FieldScreen] = *r.Screen
	}
	return out
}
