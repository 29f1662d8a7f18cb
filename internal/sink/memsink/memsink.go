// Package memsink is an in-memory RequestSink fake built on bytes.Buffer,
// used by every test in this repository that needs to push or pull an
// object body without a real HTTP connection.
package memsink

import (
	"bytes"

	"github.com/sheepgate/sheepgate/internal/sink"
)

// Sink is an in-memory RequestSink: reads drain Request, writes append to
// Response.
type Sink struct {
	Request  *bytes.Reader
	Response bytes.Buffer
	Status   sink.StatusCode
}

// NewWithBody returns a Sink whose request body is body.
func NewWithBody(body []byte) *Sink {
	return &Sink{Request: bytes.NewReader(body)}
}

func (s *Sink) ReadBodyChunk(buf []byte) int {
	if s.Request == nil {
		return 0
	}
	n, err := s.Request.Read(buf)
	if n == 0 || err != nil {
		return 0
	}
	return n
}

func (s *Sink) WriteBodyChunk(buf []byte, n int) {
	s.Response.Write(buf[:n])
}

func (s *Sink) SetStatus(code sink.StatusCode) {
	s.Status = code
}
