// Package resolver maps a PO or PRO number to a vendor location ID.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tms-provisioning-api/internal/models"
	"tms-provisioning-api/internal/tms"
)

// ErrNotResolved signals that the PO/PRO could not be mapped to a vendor location
var ErrNotResolved = errors.New("resolver: vendor location not resolved")

// ErrUnknownPolicy is returned by New for an unsupported policy name
var ErrUnknownPolicy = errors.New("resolver: unknown policy")

// Policy names a resolution strategy
type Policy string

const (
	PolicyStub Policy = "stub"
	PolicyHash Policy = "hash"
	PolicyLive Policy = "live"
)

// Resolver returns the vendor location for a request.
// An empty ID with a nil error defers to the warehouse location.
type Resolver interface {
	Resolve(ctx context.Context, req models.UserRequest) (string, error)
}

// SessionResolver is a Resolver that logs in to TMS while resolving.
// The session it returns may be reused for the rest of the run; a zero
// session means no login happened.
type SessionResolver interface {
	Resolver
	ResolveSession(ctx context.Context, req models.UserRequest) (string, models.Session, error)
}

// Func adapts a function to the Resolver interface
type Func func(ctx context.Context, req models.UserRequest) (string, error)

func (f Func) Resolve(ctx context.Context, req models.UserRequest) (string, error) {
	return f(ctx, req)
}

// Stub always defers to the warehouse location
type Stub struct{}

func (Stub) Resolve(context.Context, models.UserRequest) (string, error) {
	return "", nil
}

// Hash derives a distinct but fake location ID from the key.
// It stands in for a vendor system that is not integrated yet.
type Hash struct{}

func (Hash) Resolve(_ context.Context, req models.UserRequest) (string, error) {
	key := req.Key()
	if key == "" {
		return "", ErrNotResolved
	}
	return HashLocationID(key), nil
}

// HashLocationID returns "9" followed by the character-code sum of key modulo 999999
func HashLocationID(key string) string {
	sum := 0
	for _, r := range key {
		sum += int(r)
	}
	return "9" + strconv.Itoa(sum%999999)
}

// Deps holds the collaborators the live policy needs
type Deps struct {
	Orders      OrderLookup
	Credentials tms.Credentials
	Tracking    PROLookup
}

// New builds the resolver for a policy
func New(policy Policy, deps Deps) (Resolver, error) {
	switch policy {
	case PolicyStub:
		return Stub{}, nil
	case PolicyHash:
		return Hash{}, nil
	case PolicyLive, "":
		if deps.Orders == nil {
			return nil, fmt.Errorf("resolver: live policy requires an order lookup")
		}
		return NewLive(deps.Orders, deps.Credentials, deps.Tracking), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}
