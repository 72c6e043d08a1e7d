package model

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrConfig     = errors.New("configuration error")
	ErrValidation = errors.New("validation error")
	ErrConnection = errors.New("connection error")
	ErrIO         = errors.New("output error")
)

// ConnectionError is an SSH transport, authentication or session failure against a host.
type ConnectionError struct {
	Host string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is matches ErrConnection so callers can classify without a type assertion.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}
