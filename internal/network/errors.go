package network

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// permanentMarkers are node responses that no retry can fix: the call is
// wrong, not the connection.
var permanentMarkers = []string{
	"execution reverted",
	"nonce too low",
	"insufficient funds",
	"already known",
	"replacement transaction underpriced",
	"invalid sender",
	"gas required exceeds allowance",
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"too many requests",
	"429",
	"502",
	"503",
	"no route to host",
	"eof",
}

// classify wraps an RPC failure as a domain.NetworkError, deciding whether
// the coordinator's retry policy may apply. Unknown failures are treated as
// permanent: retrying a call we cannot interpret risks double submission.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.NetworkError{Op: op, Err: err, Transient: isTransient(err)}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isRevert reports whether the node rejected the call at the EVM level.
// Reverts are simulation outcomes, not network failures.
func isRevert(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
