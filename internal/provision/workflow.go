// Package provision runs the account provisioning workflow:
// resolve the vendor location, log into the TMS, find or create the user,
// then attach the vendor and warehouse location contacts.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tms-provisioning-api/internal/audit"
	"tms-provisioning-api/internal/intake"
	"tms-provisioning-api/internal/logger"
	"tms-provisioning-api/internal/models"
	"tms-provisioning-api/internal/resolver"
	"tms-provisioning-api/internal/tms"
)

// State is where a workflow run ended
type State string

const (
	StateMissingFields    State = "missing_fields"
	StateNoPoPro          State = "no_po_pro"
	StateResolutionFailed State = "resolution_failed"
	StateLoginFailed      State = "login_failed"
	StateCreateFailed     State = "create_failed"
	StateServerFailure    State = "server_failure"
	StateDone             State = "done"
)

// TMS is the subset of the TMS client the workflow drives
type TMS interface {
	Login(ctx context.Context, creds tms.Credentials) (models.Session, error)
	FindUserByEmail(ctx context.Context, session models.Session, email string) (models.TmsUser, error)
	CreateUser(ctx context.Context, session models.Session, req models.UserRequest) (models.TmsUser, error)
	AttachLocationContact(ctx context.Context, session models.Session, userID, locationID string, req models.UserRequest) models.LocationContact
}

// Observer is notified of every finished run
type Observer interface {
	ObserveOutcome(state string, created, partial bool)
}

// Config holds the fixed inputs of every run
type Config struct {
	Credentials         tms.Credentials
	WarehouseLocationID string
}

// Workflow provisions TMS accounts
type Workflow struct {
	tms      TMS
	resolver resolver.Resolver
	cfg      Config
	recorder audit.Recorder
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Workflow
type Option func(*Workflow)

// WithRecorder sets the audit recorder
func WithRecorder(r audit.Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

// WithObserver sets the outcome observer
func WithObserver(o Observer) Option {
	return func(w *Workflow) { w.observer = o }
}

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// New creates a Workflow
func New(client TMS, res resolver.Resolver, cfg Config, opts ...Option) *Workflow {
	if cfg.WarehouseLocationID == "" {
		cfg.WarehouseLocationID = models.DefaultWarehouseLocationID
	}
	w := &Workflow{
		tms:      client,
		resolver: res,
		cfg:      cfg,
		recorder: audit.Nop{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WarehouseLocationID returns the warehouse location attached to every account
func (w *Workflow) WarehouseLocationID() string {
	return w.cfg.WarehouseLocationID
}

// Handle normalizes a payload and runs the workflow on it
func (w *Workflow) Handle(ctx context.Context, p intake.Payload) Outcome {
	req, verdict := intake.Normalize(p)
	switch verdict {
	case intake.VerdictMissingFields:
		return w.finish(ctx, Outcome{State: StateMissingFields, Request: req})
	case intake.VerdictNoPoPro:
		return w.finish(ctx, Outcome{State: StateNoPoPro, Request: req})
	}
	return w.Run(ctx, req)
}

// Run provisions the account for a normalized request.
// Each TMS step runs only after the previous one succeeded.
func (w *Workflow) Run(ctx context.Context, req models.UserRequest) Outcome {
	out := Outcome{Request: req, WarehouseLocationID: w.cfg.WarehouseLocationID}
	if !req.HasIdentity() {
		out.State = StateMissingFields
		return w.finish(ctx, out)
	}
	if !req.HasKey() {
		out.State = StateNoPoPro
		return w.finish(ctx, out)
	}

	log := w.log(ctx).With(zap.String("email", req.Email), zap.String(string(req.KeyKind()), req.Key()))

	vendorID, session, err := w.resolve(ctx, req)
	if err != nil {
		out.Err = err
		switch {
		case tms.IsUnavailable(err):
			out.State = StateServerFailure
		case errors.Is(err, tms.ErrAuthFailed):
			out.State = StateLoginFailed
		default:
			out.State = StateResolutionFailed
		}
		log.Info("vendor location not resolved", zap.Error(err))
		return w.finish(ctx, out)
	}
	if vendorID == "" {
		vendorID = w.cfg.WarehouseLocationID
		out.VendorDefaulted = true
	}
	out.VendorLocationID = vendorID

	if session.UserToken == "" {
		session, err = w.tms.Login(ctx, w.cfg.Credentials)
		if err != nil {
			out.Err = err
			out.State = StateLoginFailed
			if tms.IsUnavailable(err) {
				out.State = StateServerFailure
			}
			log.Warn("tms login failed", zap.Error(err))
			return w.finish(ctx, out)
		}
	}

	user, err := w.tms.FindUserByEmail(ctx, session, req.Email)
	switch {
	case err == nil:
		log.Info("existing tms user found", zap.String("user_id", user.UserID))
	case tms.IsUnavailable(err):
		out.Err = err
		out.State = StateServerFailure
		return w.finish(ctx, out)
	case errors.Is(err, tms.ErrAuthFailed):
		out.Err = err
		out.State = StateLoginFailed
		return w.finish(ctx, out)
	default:
		// ErrNotFound, or a search body that could not be read
		if !errors.Is(err, tms.ErrNotFound) {
			log.Warn("user search unreadable, creating", zap.Error(err))
		}
		user, err = w.tms.CreateUser(ctx, session, req)
		if err != nil {
			out.Err = err
			out.State = StateCreateFailed
			if tms.IsUnavailable(err) {
				out.State = StateServerFailure
			}
			log.Warn("tms user creation failed", zap.Error(err), zap.String("body", tms.DiagnosticBody(err)))
			return w.finish(ctx, out)
		}
		out.Created = true
		log.Info("tms user created", zap.String("user_id", user.UserID))
	}
	out.User = user

	out.Contacts = []models.LocationContact{
		w.tms.AttachLocationContact(ctx, session, user.UserID, vendorID, req),
		w.tms.AttachLocationContact(ctx, session, user.UserID, w.cfg.WarehouseLocationID, req),
	}
	for _, c := range out.Contacts {
		if !c.OK() {
			log.Warn("location contact not attached", zap.String("location_id", c.LocationID), zap.Error(c.Err))
		}
	}

	out.State = StateDone
	return w.finish(ctx, out)
}

// Recover converts a recovered panic value into a server failure outcome
func (w *Workflow) Recover(ctx context.Context, recovered any) Outcome {
	return w.finish(ctx, Outcome{
		State: StateServerFailure,
		Err:   fmt.Errorf("%v", recovered),
		Crash: true,
	})
}

// resolve returns the vendor location and, when the resolver logged in to do
// the lookup, the session it used
func (w *Workflow) resolve(ctx context.Context, req models.UserRequest) (string, models.Session, error) {
	if sr, ok := w.resolver.(resolver.SessionResolver); ok {
		return sr.ResolveSession(ctx, req)
	}
	id, err := w.resolver.Resolve(ctx, req)
	return id, models.Session{}, err
}

func (w *Workflow) finish(ctx context.Context, out Outcome) Outcome {
	if out.WarehouseLocationID == "" {
		out.WarehouseLocationID = w.cfg.WarehouseLocationID
	}
	if w.observer != nil {
		w.observer.ObserveOutcome(string(out.State), out.Created, out.Partial())
	}

	entry := audit.Entry{
		RequestID:        logger.GetRequestID(ctx),
		Email:            out.Request.Email,
		Key:              out.Request.Key(),
		State:            string(out.State),
		VendorLocationID: out.VendorLocationID,
		UserID:           out.User.UserID,
		Created:          out.Created,
		Partial:          out.Partial(),
		At:               w.now().UTC(),
	}
	if out.Request.HasKey() {
		entry.KeyKind = string(out.Request.KeyKind())
	}
	if out.Err != nil {
		entry.Detail = out.Err.Error()
		if body := tms.DiagnosticBody(out.Err); body != "" {
			entry.Detail += ": " + body
		}
	}
	if err := w.recorder.Record(ctx, entry); err != nil {
		w.log(ctx).Warn("audit record failed", zap.Error(err))
	}
	return out
}

func (w *Workflow) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, w.logger)
}
