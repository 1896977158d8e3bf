// Package quota tracks the interview minutes an account has left.
//
// The orchestrator reads the balance once when an interview starts and then
// counts down locally; [Store.Decrement] is called best effort once per
// elapsed minute so the persisted balance follows the local one.
package quota

import (
	"context"
	"errors"
)

// ErrUnknownAccount is returned by stores that do not create accounts on
// first use.
var ErrUnknownAccount = errors.New("quota: unknown account")

// Store persists remaining minutes per account.
//
// Implementations must be safe for concurrent use. Decrement never drives a
// balance below zero and returns the balance after the update.
type Store interface {
	Remaining(ctx context.Context, account string) (int, error)
	Decrement(ctx context.Context, account string, minutes int) (int, error)
}

// Pinger is implemented by stores backed by a remote service. The health
// endpoint uses it for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
