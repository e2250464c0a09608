package model

// Shared defaults used by the service and the status CLI.
const (
	// DefaultMaxEntries bounds the number of records kept in the backing file.
	DefaultMaxEntries = 100

	// RootTag, ClientTag and RecordTag name the elements of the backing document.
	RootTag   = "display"
	ClientTag = "client"
	RecordTag = "log"

	// TimeLayout is the ISO-8601 form written to the time attribute.
	TimeLayout = "2006-01-02T15:04:05-07:00"
)
