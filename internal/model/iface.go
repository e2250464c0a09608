package model

import "time"

// LogReader provides the full-log load used by read surfaces (HTTP and socket RPC).
type LogReader interface {
	Records() ([]LogRecord, error)
	RecordCount() (int, error)
}

// LogIngester appends one status report to the bounded log.
type LogIngester interface {
	Ingest(fields Fields, addr string, now time.Time) (LogRecord, error)
}

// LogStore is the unified contract implemented by the bounded log store.
type LogStore interface {
	LogReader
	LogIngester
}
