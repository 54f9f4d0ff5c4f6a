package domain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ResponseType describes how much of a response the page may inspect.
type ResponseType string

const (
	// TypeBasic is a same-origin response.
	TypeBasic ResponseType = "basic"
	// TypeCORS is a cross-origin response exposed through CORS headers.
	TypeCORS ResponseType = "cors"
	// TypeOpaque is a cross-origin response without CORS exposure.
	TypeOpaque ResponseType = "opaque"
	// TypeError marks a network-level failure.
	TypeError ResponseType = "error"
	// TypeDefault is a response constructed locally.
	TypeDefault ResponseType = "default"
)

// Response is the result of a fetch or a store lookup.
//
// The body can be read once. Use Clone before reading when the response has
// to go to two consumers.
type Response struct {
	Type       ResponseType
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser

	used bool
}

// NewResponse builds a response with an in-memory body.
func NewResponse(typ ResponseType, statusCode int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		Type:       typ,
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// NetworkError returns a response of type error.
func NetworkError() *Response {
	return &Response{Type: TypeError, Header: http.Header{}, Body: http.NoBody}
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode <= 299
}

// BodyUsed reports whether the body has been consumed through ReadBody.
func (r *Response) BodyUsed() bool {
	return r.used
}

// ReadBody consumes and closes the body.
func (r *Response) ReadBody() ([]byte, error) {
	if r.used {
		return nil, ErrBodyUsed
	}
	r.used = true
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// Clone duplicates the response. The body is buffered once and both the
// receiver and the returned copy get an independent reader over it.
func (r *Response) Clone() (*Response, error) {
	if r.used {
		return nil, ErrBodyUsed
	}
	var data []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			return nil, err
		}
		data = b
		r.Body = io.NopCloser(bytes.NewReader(data))
	}

	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	if r.Body != nil {
		c.Body = io.NopCloser(bytes.NewReader(data))
	}
	return &c, nil
}

// Tee lets a second consumer see the body as it streams. The receiver keeps
// its body and can be returned to the page at once; the capture collects
// every byte the page reads.
func (r *Response) Tee() (*BodyCapture, error) {
	if r.used {
		return nil, ErrBodyUsed
	}
	c := &BodyCapture{
		head: Response{
			Type:       r.Type,
			URL:        r.URL,
			StatusCode: r.StatusCode,
			Status:     r.Status,
			Header:     r.Header.Clone(),
		},
		done: make(chan struct{}),
	}
	src := r.Body
	if src == nil {
		src = http.NoBody
	}
	r.Body = &teeBody{src: src, capture: c}
	return c, nil
}

// BodyCapture is the second half of a teed response.
type BodyCapture struct {
	head Response
	buf  bytes.Buffer
	err  error
	once sync.Once
	done chan struct{}
}

// Wait blocks until the teed body reached end of stream and returns a copy
// of the response with the full body. A read error, or a Close before the
// end, yields ErrBodyIncomplete.
func (c *BodyCapture) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	res := c.head
	res.Header = c.head.Header.Clone()
	if res.Header == nil {
		res.Header = http.Header{}
	}
	res.Body = io.NopCloser(bytes.NewReader(c.buf.Bytes()))
	return &res, nil
}

func (c *BodyCapture) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

type teeBody struct {
	src     io.ReadCloser
	capture *BodyCapture
	ended   bool
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 && !t.ended {
		t.capture.buf.Write(p[:n])
	}
	switch {
	case err == io.EOF:
		t.ended = true
		t.capture.finish(nil)
	case err != nil:
		t.ended = true
		t.capture.finish(fmt.Errorf("%w: %w", ErrBodyIncomplete, err))
	}
	return n, err
}

func (t *teeBody) Close() error {
	t.ended = true
	t.capture.finish(ErrBodyIncomplete)
	return t.src.Close()
}
