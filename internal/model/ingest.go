package model

import "net/url"

// StatusReport carries one upload as received by a transport.
// It is the contract between the HTTP layer and the ingest processor.
type StatusReport struct {
	Form       url.Values
	RemoteAddr string
}
