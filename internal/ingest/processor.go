package ingest

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/displaylog/internal/model"
)

// Processor validates uploads and appends them to the bounded log.
type Processor struct {
	store  model.LogIngester
	policy Policy
	now    func() time.Time
}

// NewProcessor creates a processor writing to store under policy.
func NewProcessor(store model.LogIngester, policy Policy) *Processor {
	if policy == "" {
		policy = PolicyPartial
	}
	return &Processor{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// ProcessResult holds the record appended for one upload.
type ProcessResult struct {
	Record model.LogRecord
}

// Policy returns the validation policy in use.
func (p *Processor) Policy() Policy { return p.policy }

// Process runs one upload to completion. A MissingFieldError leaves the log
// untouched; a store error means the record was lost.
func (p *Processor) Process(report model.StatusReport) (*ProcessResult, error) {
	fields, err := p.policy.Extract(report.Form)
	if err != nil {
		var missing *MissingFieldError
		if errors.As(err, &missing) {
			log.Info().Str("field", missing.Field).Str("ip", report.RemoteAddr).Msg("ingest: rejected upload with missing field")
		}
		return nil, err
	}

	rec, err := p.store.Ingest(fields, report.RemoteAddr, p.now())
	if err != nil {
		log.Error().Err(err).Str("ip", report.RemoteAddr).Msg("ingest: failed to persist upload")
		return nil, err
	}
	return &ProcessResult{Record: rec}, nil
}
