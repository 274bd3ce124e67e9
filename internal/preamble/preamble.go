// Package preamble parses the self-describing first line of generated output
// and splits it off an incrementally arriving fragment stream.
//
// Generated documents start with a one-line preamble of the form "<mime>" or
// "<status> <mime>"; everything after the first newline is the body.
package preamble

import (
	"strconv"
	"strings"
	"sync"
)

// Header is the parsed status and mime type of a generated document.
type Header struct {
	Status   int
	MimeType string
}

// DefaultHeader is what a missing or unparseable preamble resolves to.
func DefaultHeader() Header {
	return Header{Status: 200, MimeType: "text/html; charset=utf-8"}
}

// Parse interprets a preamble line.
//
// The line is split on whitespace. If the first token is purely numeric and at
// least one more token follows, it is the HTTP status and the remainder is the
// mime string; otherwise the whole line is the mime string and the status is
// 200. Statuses outside [100,599] are clamped to 200, and 404 is remapped to
// 418: this service never claims "not found".
func Parse(line string) Header {
	line = strings.TrimSpace(line)

	// Strip a "Content-Type:" label if the model added one.
	if len(line) >= 12 && strings.EqualFold(line[:12], "content-type") {
		if _, rest, ok := strings.Cut(line, ":"); ok {
			line = strings.TrimSpace(rest)
		}
	}

	status := 200
	mime := "text/html"

	if line != "" {
		parts := strings.Fields(line)
		if isNumeric(parts[0]) && len(parts) >= 2 {
			if n, err := strconv.Atoi(parts[0]); err == nil {
				status = n
			}
			mime = strings.Join(parts[1:], " ")
		} else {
			mime = line
		}
	}

	if status < 100 || status > 599 {
		status = 200
	}
	if status == 404 {
		status = 418
	}

	if !strings.Contains(mime, "/") {
		mime = "text/html"
	}
	if !strings.Contains(strings.ToLower(mime), "charset") {
		mime += "; charset=utf-8"
	}

	return Header{Status: status, MimeType: mime}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Future is a one-shot promise for the parsed header. The producer resolves
// it exactly once, before any body fragment is emitted; consumers block on
// Wait instead of polling.
type Future struct {
	once sync.Once
	done chan struct{}
	hdr  Header
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(h Header) {
	f.once.Do(func() {
		f.hdr = h
		close(f.done)
	})
}

// Done returns a channel closed once the header is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the header is resolved and returns it.
func (f *Future) Wait() Header {
	<-f.done
	return f.hdr
}

// Demux consumes a fragment stream and splits the preamble from the body.
//
// Fragments are buffered until the first newline appears: the text before it
// is parsed as the header, the text after it (if any) becomes the first body
// fragment, and all later fragments pass through unmodified. If the stream is
// exhausted without a newline, the whole buffer is treated as a header-less
// body and the header resolves to DefaultHeader.
//
// The header future is always resolved before the first body fragment is sent
// and before the body channel closes.
func Demux(in <-chan string) (*Future, <-chan string) {
	future := newFuture()
	out := make(chan string)

	go func() {
		defer close(out)

		var buf strings.Builder
		awaiting := true

		for frag := range in {
			if !awaiting {
				out <- frag
				continue
			}
			buf.WriteString(frag)
			if i := strings.Index(buf.String(), "\n"); i >= 0 {
				s := buf.String()
				future.resolve(Parse(s[:i]))
				awaiting = false
				if rest := s[i+1:]; rest != "" {
					out <- rest
				}
			}
		}

		if awaiting {
			future.resolve(DefaultHeader())
			if buf.Len() > 0 {
				out <- buf.String()
			}
		}
	}()

	return future, out
}
