package database

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

// ConnectionErrorKind is the operator-facing class of a connection failure.
type ConnectionErrorKind int

// Connection failure kinds.
const (
	ConnUnknown ConnectionErrorKind = iota
	ConnRefused
	ConnAuthFailed
	ConnUnknownHost
	ConnUnknownDatabase
)

func (k ConnectionErrorKind) String() string {
	switch k {
	case ConnRefused:
		return "connection refused"
	case ConnAuthFailed:
		return "authentication failed"
	case ConnUnknownHost:
		return "unknown host"
	case ConnUnknownDatabase:
		return "unknown database"
	default:
		return "unknown"
	}
}

// ConnectionError is returned by Open when the database cannot be reached.
type ConnectionError struct {
	Kind ConnectionErrorKind
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database (%s): %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Hint tells the operator what to check for this kind of failure.
func (e *ConnectionError) Hint() string {
	switch e.Kind {
	case ConnRefused:
		return "is PostgreSQL running? check DB_HOST and DB_PORT"
	case ConnAuthFailed:
		return "check DB_USERNAME and DB_PASSWORD"
	case ConnUnknownHost:
		return "check DB_HOST, the name does not resolve"
	case ConnUnknownDatabase:
		return "check DB_DATABASE, the database must exist before migrating"
	default:
		return "check the DB_* connection settings and DB_SSL"
	}
}

// NewConnectionError classifies err and wraps it.
func NewConnectionError(err error) *ConnectionError {
	return &ConnectionError{Kind: classifyConnectionError(err), Err: err}
}

func classifyConnectionError(err error) ConnectionErrorKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "28P01", "28000":
			return ConnAuthFailed
		case "3D000":
			return ConnUnknownDatabase
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ConnUnknownHost
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return ConnRefused
	case strings.Contains(msg, "authentication failed"):
		return ConnAuthFailed
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "could not translate host name"):
		return ConnUnknownHost
	case strings.Contains(msg, "database") && strings.Contains(msg, "does not exist"):
		return ConnUnknownDatabase
	default:
		return ConnUnknown
	}
}
