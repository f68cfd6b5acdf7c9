package test_helpers

import (
	"context"
	"errors"
	"sync"

	query "github.com/ice-blockchain/go-tarantool-query"
)

// MockRouter is an implementation of the query.Router interface with fixed
// handles. A nil Replica behaves as an unreachable replica.
type MockRouter struct {
	MasterHandle  query.Handle
	ReplicaHandle query.Handle

	mutex        sync.Mutex
	masterCalls  int
	replicaCalls int
	closed       bool
}

var _ query.Router = (*MockRouter)(nil)

// NewMockRouter creates a router over master and replica handles.
func NewMockRouter(master, replica query.Handle) *MockRouter {
	return &MockRouter{MasterHandle: master, ReplicaHandle: replica}
}

func (r *MockRouter) Master(context.Context) (query.Handle, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.masterCalls++
	if r.MasterHandle == nil {
		return nil, query.ErrNoServerAvailable
	}
	return r.MasterHandle, nil
}

func (r *MockRouter) Replica(_ context.Context, fallbackToMaster bool) (query.Handle, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.replicaCalls++
	if r.ReplicaHandle != nil {
		return r.ReplicaHandle, nil
	}
	if !fallbackToMaster {
		return nil, query.ErrNoReplica
	}
	r.masterCalls++
	if r.MasterHandle == nil {
		return nil, query.ErrNoServerAvailable
	}
	return r.MasterHandle, nil
}

// Close marks the router closed.
func (r *MockRouter) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.closed = true
	return nil
}

// Calls returns how many times each role was requested. A replica request
// that fell back to the master counts for both.
func (r *MockRouter) Calls() (master, replica int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.masterCalls, r.replicaCalls
}

// Closed reports whether Close was called.
func (r *MockRouter) Closed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.closed
}

// ErrConnectionRefused is the default failure of a MockOpener endpoint.
var ErrConnectionRefused = errors.New("connection refused")

// MockOpener opens handles from a table keyed by address. Addresses
// missing from the table fail with ErrConnectionRefused.
type MockOpener struct {
	mutex   sync.Mutex
	handles map[string]query.Handle
	errs    map[string]error
	opened  []string
}

// NewMockOpener creates an opener that can reach nothing.
func NewMockOpener() *MockOpener {
	return &MockOpener{
		handles: make(map[string]query.Handle),
		errs:    make(map[string]error),
	}
}

// Serve makes address reachable through handle.
func (o *MockOpener) Serve(address string, handle query.Handle) *MockOpener {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.handles[address] = handle
	delete(o.errs, address)
	return o
}

// Fail makes opening address return err.
func (o *MockOpener) Fail(address string, err error) *MockOpener {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	delete(o.handles, address)
	o.errs[address] = err
	return o
}

// Open returns the handle served on address.
func (o *MockOpener) Open(_ context.Context, address string) (query.Handle, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.opened = append(o.opened, address)
	if h, ok := o.handles[address]; ok {
		return h, nil
	}
	if err, ok := o.errs[address]; ok {
		return nil, err
	}
	return nil, ErrConnectionRefused
}

// Opened returns the addresses in the order Open was called.
func (o *MockOpener) Opened() []string {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	opened := make([]string, len(o.opened))
	copy(opened, o.opened)
	return opened
}
