package transport

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/metrics"
)

// responseWriter turns machine outcomes into response lines. It is owned by
// the connection worker goroutine.
type responseWriter struct {
	out      *bufio.Writer
	enc      *json.Encoder
	metadata map[string]any
	outcome  string
	lastCode string
	err      error
}

func newResponseWriter(w io.Writer) *responseWriter {
	out := bufio.NewWriter(w)
	return &responseWriter{out: out, enc: json.NewEncoder(out)}
}

var _ fsm.ResponseHandler = (*responseWriter)(nil)

func (w *responseWriter) OnMetadata(key string, value any) {
	if w.metadata == nil {
		w.metadata = map[string]any{}
	}
	w.metadata[key] = value
}

// OnRecord streams one record straight to the client.
func (w *responseWriter) OnRecord(values []any) error {
	if err := w.enc.Encode(Response{Type: TypeRecord, Values: values}); err != nil {
		w.err = errors.Wrap(err, "write record")
		return w.err
	}
	return nil
}

func (w *responseWriter) OnSuccess() {
	w.summary(metrics.OutcomeSuccess, Response{Type: TypeSuccess, Metadata: w.metadata})
}

func (w *responseWriter) OnFailure(err *failure.Error) {
	w.lastCode = err.Status().Code()
	w.summary(metrics.OutcomeFailure, Response{Type: TypeFailure, Metadata: map[string]any{
		"code":    w.lastCode,
		"message": err.Message(),
	}})
}

func (w *responseWriter) OnIgnored() {
	w.summary(metrics.OutcomeIgnored, Response{Type: TypeIgnored})
}

func (w *responseWriter) summary(outcome string, resp Response) {
	w.outcome = outcome
	w.metadata = nil
	if err := w.enc.Encode(resp); err != nil {
		w.err = errors.Wrap(err, "write summary")
		return
	}
	if err := w.out.Flush(); err != nil {
		w.err = errors.Wrap(err, "flush response")
	}
}

// take returns and clears the outcome of the last request.
func (w *responseWriter) take() (outcome, code string, err error) {
	outcome, code, err = w.outcome, w.lastCode, w.err
	w.outcome, w.lastCode, w.err = "", "", nil
	return outcome, code, err
}
