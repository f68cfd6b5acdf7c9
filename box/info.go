package box

import (
	"context"
	"fmt"

	query "github.com/ice-blockchain/go-tarantool-query"
)

// Info represents detailed information about the Tarantool instance.
type Info struct {
	// The Version of the Tarantool instance.
	Version string `msgpack:"version"`
	// The node ID (nullable).
	ID *int `msgpack:"id"`
	// Read-only (RO) status of the instance.
	RO bool `msgpack:"ro"`
	// UUID - Unique identifier of the instance.
	UUID string `msgpack:"uuid"`
	// Process ID of the instance.
	PID int `msgpack:"pid"`
	// Status - Current status of the instance (e.g., running, unconfigured).
	Status string `msgpack:"status"`
	// LSN - Log sequence number of the instance.
	LSN uint64 `msgpack:"lsn"`
}

// NewInfoRequest returns a call of box.info.
func NewInfoRequest() *query.Call {
	return &query.Call{Function: "box.info"}
}

// Info retrieves the current information of the Tarantool instance.
func (b *Box) Info(ctx context.Context) (Info, error) {
	req := NewInfoRequest()
	data, err := b.conn.Do(ctx, req)
	if err != nil {
		return Info{}, err
	}

	var infos []Info
	resp := &query.Response{Type: req.Type(), Data: data}
	if err := resp.DecodeTyped(&infos); err != nil {
		return Info{}, err
	}
	if len(infos) != 1 {
		return Info{}, fmt.Errorf("protocol violation; expected 1 array entry, got %d", len(infos))
	}
	return infos[0], nil
}
