package resolver

import (
	"context"
	"errors"
	"fmt"

	"tms-provisioning-api/internal/models"
	"tms-provisioning-api/internal/tms"
)

// OrderLookup is the subset of the TMS client used to walk PRO → order → vendor location
type OrderLookup interface {
	Login(ctx context.Context, creds tms.Credentials) (models.Session, error)
	FindOrderByPRO(ctx context.Context, session models.Session, pro string) (string, error)
	GetOrderVendorLocation(ctx context.Context, session models.Session, orderID string) (string, error)
}

// PROLookup maps a purchase order to a PRO number
type PROLookup interface {
	LookupPRO(ctx context.Context, po string) (string, error)
}

// Live resolves through the TMS order chain, using the tracking service for POs
type Live struct {
	orders   OrderLookup
	creds    tms.Credentials
	tracking PROLookup
}

// NewLive creates a live resolver. tracking may be nil, in which case POs never resolve.
func NewLive(orders OrderLookup, creds tms.Credentials, tracking PROLookup) *Live {
	return &Live{orders: orders, creds: creds, tracking: tracking}
}

// Resolve walks PO → PRO → order → vendor location
func (l *Live) Resolve(ctx context.Context, req models.UserRequest) (string, error) {
	locationID, _, err := l.ResolveSession(ctx, req)
	return locationID, err
}

// ResolveSession resolves like Resolve and also returns the TMS session the
// order lookup ran on. The session is set whenever the login succeeded, even
// if the order chain then failed.
func (l *Live) ResolveSession(ctx context.Context, req models.UserRequest) (string, models.Session, error) {
	pro := req.PRO
	if pro == "" {
		var err error
		pro, err = l.proForPO(ctx, req.PO)
		if err != nil {
			return "", models.Session{}, err
		}
	}

	session, err := l.orders.Login(ctx, l.creds)
	if err != nil {
		return "", models.Session{}, err
	}

	orderID, err := l.orders.FindOrderByPRO(ctx, session, pro)
	if err != nil {
		return "", session, notResolved(err)
	}

	locationID, err := l.orders.GetOrderVendorLocation(ctx, session, orderID)
	if err != nil {
		return "", session, notResolved(err)
	}
	return locationID, session, nil
}

func (l *Live) proForPO(ctx context.Context, po string) (string, error) {
	if po == "" {
		return "", ErrNotResolved
	}
	if l.tracking == nil {
		return "", fmt.Errorf("%w: no tracking service for PO lookups", ErrNotResolved)
	}
	pro, err := l.tracking.LookupPRO(ctx, po)
	if err != nil {
		return "", notResolved(err)
	}
	return pro, nil
}

// notResolved keeps transport and auth failures distinct; everything else is a miss
func notResolved(err error) error {
	if errors.Is(err, tms.ErrUpstreamUnavailable) || errors.Is(err, tms.ErrAuthFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNotResolved, err)
}
