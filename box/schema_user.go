package box

import (
	"context"
	"fmt"

	query "github.com/ice-blockchain/go-tarantool-query"
)

// SchemaUser provides methods to interact with schema-related user operations in Tarantool.
type SchemaUser struct {
	conn query.Doer
}

// NewSchemaUser creates a new SchemaUser sending requests through conn.
func NewSchemaUser(conn query.Doer) *SchemaUser {
	return &SchemaUser{conn: conn}
}

// UserCreateOptions represents options for creating a user in Tarantool.
type UserCreateOptions struct {
	// IfNotExists - if true, prevents an error if the user already exists.
	IfNotExists bool `msgpack:"if_not_exists"`
	// Password for the new user.
	Password string `msgpack:"password"`
}

// UserDropOptions represents options for dropping a user in Tarantool.
type UserDropOptions struct {
	// IfExists - if true, prevents an error if the user does not exist.
	IfExists bool `msgpack:"if_exists"`
}

// NewUserExistsRequest creates a new request to check if a user exists.
func NewUserExistsRequest(username string) *query.Call {
	return &query.Call{
		Function: "box.schema.user.exists",
		Args:     []interface{}{username},
	}
}

// NewUserCreateRequest creates a new request to create a user with specified options.
func NewUserCreateRequest(username string, options UserCreateOptions) *query.Call {
	return &query.Call{
		Function: "box.schema.user.create",
		Args:     []interface{}{username, options},
		RouteAs:  query.RW,
	}
}

// NewUserDropRequest creates a new request to drop a user.
func NewUserDropRequest(username string, options UserDropOptions) *query.Call {
	return &query.Call{
		Function: "box.schema.user.drop",
		Args:     []interface{}{username, options},
		RouteAs:  query.RW,
	}
}

// Exists checks if the specified user exists in Tarantool.
func (u *SchemaUser) Exists(ctx context.Context, username string) (bool, error) {
	req := NewUserExistsRequest(username)
	data, err := u.conn.Do(ctx, req)
	if err != nil {
		return false, err
	}

	value, ok := (&query.Response{Type: req.Type(), Data: data}).Scalar()
	if !ok {
		return false, fmt.Errorf("protocol violation; expected 1 array entry, got %d", len(data))
	}
	exists, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("protocol violation; expected bool, got %T", value)
	}
	return exists, nil
}

// Create creates a new user in Tarantool with the given username and options.
func (u *SchemaUser) Create(ctx context.Context, username string, options UserCreateOptions) error {
	_, err := u.conn.Do(ctx, NewUserCreateRequest(username, options))
	return err
}

// Drop drops the specified user from Tarantool.
func (u *SchemaUser) Drop(ctx context.Context, username string, options UserDropOptions) error {
	_, err := u.conn.Do(ctx, NewUserDropRequest(username, options))
	return err
}
