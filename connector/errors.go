package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed classification of connector failures. It is assigned
// once at the connector boundary; retry decisions downstream key off it.
type Kind string

const (
	// KindNetwork covers timeouts, refused/reset connections, unavailable
	// RPC endpoints and rate limiting. Eligible for retry.
	KindNetwork Kind = "network"
	// KindValidation covers pre-submission failures: insufficient balance,
	// missing allowance, bad parameters. Never retried.
	KindValidation Kind = "validation"
	// KindLogic covers on-chain rejections such as slippage reverts. Never
	// retried.
	KindLogic Kind = "logic"
)

// Error is the tagged error every connector method returns on failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the order manager may retry after this error.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork
}

// NewNetwork wraps err as a network-classified connector error.
func NewNetwork(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// NewValidation wraps err as a validation-classified connector error.
func NewValidation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// NewLogic wraps err as a logic-classified connector error.
func NewLogic(op string, err error) *Error {
	return &Error{Kind: KindLogic, Op: op, Err: err}
}

// networkKeywords mirror the transport failure strings seen from RPC
// endpoints and the net package.
var networkKeywords = []string{
	"connection",
	"timeout",
	"timed out",
	"network",
	"unreachable",
	"refused",
	"reset",
	"broken pipe",
	"unavailable",
	"bad gateway",
	"too many requests",
	"rate limit",
	"eof",
}

// revertKeywords indicate an on-chain rejection rather than a transport
// problem.
var revertKeywords = []string{
	"execution reverted",
	"revert",
	"insufficient_output_amount",
	"slippage",
	"replacement transaction underpriced",
	"nonce too low",
}

// ClassifyKind maps an arbitrary error to its Kind. Already-classified
// errors keep their tag; context deadline and cancellation are network-kind
// (the call never reached a verdict); otherwise the message is matched
// against known revert and transport markers.
func ClassifyKind(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range revertKeywords {
		if strings.Contains(msg, kw) {
			return KindLogic
		}
	}
	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			return KindNetwork
		}
	}
	return KindLogic
}

// Classify wraps err into an *Error under op, preserving an existing
// classification when present.
func Classify(op string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: ClassifyKind(err), Op: op, Err: err}
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
