package ingest

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/displaylog/internal/logstore"
	"github.com/tinytelemetry/displaylog/internal/model"
)

type failingStore struct{}

func (failingStore) Ingest(model.Fields, string, time.Time) (model.LogRecord, error) {
	return model.LogRecord{}, logstore.ErrPersistence
}

func newStore(t *testing.T) *logstore.Store {
	t.Helper()
	s, err := logstore.New(logstore.Config{Path: filepath.Join(t.TempDir(), "log.xml")})
	if err != nil {
		t.Fatalf("logstore.New: %v", err)
	}
	return s
}

func TestProcess_AppendsRecord(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p := NewProcessor(store, PolicyPartial)
	p.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	res, err := p.Process(model.StatusReport{
		Form:       url.Values{"battery": {"90"}, "reset": {"0"}, "screen": {"on"}},
		RemoteAddr: "198.51.100.1",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Record.Time != "2024-06-01T12:00:00+00:00" || res.Record.IP != "198.51.100.1" {
		t.Fatalf("record = %+v", res.Record)
	}
	n, _ := store.RecordCount()
	if n != 1 {
		t.Fatalf("RecordCount() = %d, want 1", n)
	}
}

func TestProcess_StrictRejectionDoesNotWrite(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	p := NewProcessor(store, PolicyStrict)

	_, err := p.Process(model.StatusReport{
		Form:       url.Values{"battery": {"90"}},
		RemoteAddr: "198.51.100.1",
	})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
	n, _ := store.RecordCount()
	if n != 0 {
		t.Fatalf("RecordCount() = %d, want 0", n)
	}
}

func TestProcess_PropagatesPersistenceFailure(t *testing.T) {
	t.Parallel()

	p := NewProcessor(failingStore{}, "")
	if p.Policy() != PolicyPartial {
		t.Fatalf("Policy() = %q, want partial", p.Policy())
	}
	_, err := p.Process(model.StatusReport{Form: url.Values{}, RemoteAddr: "a"})
	if !errors.Is(err, logstore.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}
