package blockchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

// connectionHints are error fragments that indicate the endpoint, not the
// transaction, is at fault.
var connectionHints = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"broken pipe",
	"i/o timeout",
	"server closed",
	"too many requests",
	"nonce too low",
	"replacement transaction underpriced",
}

// classify maps a transport or node error onto the domain error taxonomy.
// Unknown errors are returned unchanged and are not retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, sentinel := range []error{
		domain.ErrConnection,
		domain.ErrExecutionReverted,
		domain.ErrTimeout,
		domain.ErrArgumentMismatch,
		domain.ErrInvalidArtifact,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") {
		return fmt.Errorf("%w: %v", domain.ErrExecutionReverted, err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 429 {
			return fmt.Errorf("%w: %v", domain.ErrConnection, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}

	for _, hint := range connectionHints {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %v", domain.ErrConnection, err)
		}
	}

	return err
}
