package test_helpers

import (
	"context"
	"sync"
	"testing"

	query "github.com/ice-blockchain/go-tarantool-query"
)

type handleResponse struct {
	data []interface{}
	err  error
}

// MockHandle is an implementation of the query.Handle interface
// used for testing purposes.
type MockHandle struct {
	// Fallback answers requests after the scripted responses are used up.
	// The test fails on an unscripted request when it is nil.
	Fallback func(req query.Request) ([]interface{}, error)

	mutex     sync.Mutex
	requests  []query.Request
	responses []handleResponse
	closed    bool
	t         *testing.T
}

var _ query.Handle = (*MockHandle)(nil)

// NewMockHandle creates a MockHandle by given responses.
// Each response could be one of two types: []interface{} or error.
func NewMockHandle(t *testing.T, responses ...interface{}) *MockHandle {
	t.Helper()

	h := &MockHandle{t: t}
	for _, response := range responses {
		switch resp := response.(type) {
		case []interface{}:
			h.responses = append(h.responses, handleResponse{data: resp})
		case error:
			h.responses = append(h.responses, handleResponse{err: resp})
		default:
			t.Fatalf("unsupported type: %T", response)
		}
	}
	return h
}

// Do returns the current scripted response or error.
// It saves the request into the list returned by Requests.
func (h *MockHandle) Do(_ context.Context, req query.Request) ([]interface{}, error) {
	h.mutex.Lock()
	h.requests = append(h.requests, req)
	if len(h.responses) == 0 {
		fallback := h.Fallback
		h.mutex.Unlock()
		if fallback == nil {
			h.t.Errorf("list of responses is empty, unexpected request %s", query.Render(req, query.RenderOpts{}))
			return nil, errUnexpectedRequest
		}
		return fallback(req)
	}
	response := h.responses[0]
	h.responses = h.responses[1:]
	h.mutex.Unlock()

	return response.data, response.err
}

// Close marks the handle closed.
func (h *MockHandle) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *MockHandle) Closed() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.closed
}

// Requests returns a copy of the received requests.
func (h *MockHandle) Requests() []query.Request {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	reqs := make([]query.Request, len(h.requests))
	copy(reqs, h.requests)
	return reqs
}
