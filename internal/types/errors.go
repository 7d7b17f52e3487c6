package types

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the error taxonomy.
var (
	ErrConnection    = errors.New("connection error")
	ErrQuery         = errors.New("query error")
	ErrConfiguration = errors.New("configuration error")
)

// ConnectionError reports a database file that is missing, corrupt, or does
// not carry the expected schema.
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot open database %s: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnection) match.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// QueryError reports a failed SQL operation. Op names the gateway or engine
// operation that issued the statement.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrQuery) match.
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// ConfigurationError reports invalid engine input. It is raised before any
// statement reaches the database.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewQueryError wraps err as a QueryError unless it already is one of the
// taxonomy types.
func NewQueryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	var ce *ConnectionError
	var cfe *ConfigurationError
	if errors.As(err, &qe) || errors.As(err, &ce) || errors.As(err, &cfe) {
		return err
	}
	return &QueryError{Op: op, Err: err}
}
