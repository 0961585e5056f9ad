package transfer

import (
	"context"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

// ErrUnreachable marks failures where the endpoint could not be reached at all.
// Such failures offer the operator a local download instead.
var ErrUnreachable = errors.New("transfer endpoint unreachable")

// Uploader hands a finished document to the remote file-transfer endpoint.
type Uploader interface {
	Upload(ctx context.Context, content []byte, filename string) error
}

type unreachableError struct {
	cause error
}

func (e *unreachableError) Error() string { return ErrUnreachable.Error() + ": " + e.cause.Error() }
func (e *unreachableError) Unwrap() error { return e.cause }
func (e *unreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// Unreachable wraps err so that errors.Is(err, ErrUnreachable) holds while keeping the cause.
func Unreachable(err error) error {
	if err == nil {
		return nil
	}
	return &unreachableError{cause: err}
}

// Classify marks connection-level failures (refused, timeout, DNS, no route) as unreachable.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrUnreachable) {
		return err
	}
	if isConnectError(err) {
		return Unreachable(err)
	}
	return err
}

func isConnectError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
