package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"tms-provisioning-api/internal/intake"
	"tms-provisioning-api/internal/logger"
	"tms-provisioning-api/internal/provision"
	"tms-provisioning-api/internal/reply"
)

// Provisioner runs the workflow and turns a recovered panic into an outcome
type Provisioner interface {
	Handle(ctx context.Context, p intake.Payload) provision.Outcome
	Recover(ctx context.Context, recovered any) provision.Outcome
}

// ProvisionHandler serves the conversational and programmatic provisioning endpoints
type ProvisionHandler struct {
	Workflow  Provisioner
	Formatter reply.Formatter
	Logger    *zap.Logger
}

// NewProvisionHandler creates a new provision handler
func NewProvisionHandler(w Provisioner, f reply.Formatter, l *zap.Logger) *ProvisionHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &ProvisionHandler{Workflow: w, Formatter: f, Logger: l}
}

// ConversationalReply is the body of every /api/tms response
type ConversationalReply struct {
	Reply string `json:"reply"`
}

// Reply answers with a text reply and always responds 200
func (h *ProvisionHandler) Reply(w http.ResponseWriter, r *http.Request) {
	payload, err := intake.Decode(r)
	if err != nil {
		h.log(r.Context()).Info("unreadable provisioning request", zap.Error(err))
		writeJSON(w, http.StatusOK, ConversationalReply{Reply: reply.MissingFields()})
		return
	}

	out := h.Workflow.Handle(r.Context(), payload)
	writeJSON(w, http.StatusOK, ConversationalReply{Reply: h.Formatter.Text(out)})
}

// Provision answers with a structured body and a status code per outcome
func (h *ProvisionHandler) Provision(w http.ResponseWriter, r *http.Request) {
	payload, err := intake.Decode(r)
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrEmptyInput):
			writeError(w, "Request body must carry text or fields", "EMPTY_INPUT", http.StatusBadRequest)
		case errors.Is(err, intake.ErrAmbiguousInput):
			writeError(w, "Provide either text or fields, not both", "AMBIGUOUS_INPUT", http.StatusBadRequest)
		default:
			writeError(w, "Request body could not be decoded", "MALFORMED_INPUT", http.StatusBadRequest)
		}
		return
	}

	status, body := h.Formatter.JSON(h.Workflow.Handle(r.Context(), payload))
	writeJSON(w, status, body)
}

// Recoverer converts a panic in a downstream handler into a server failure reply
func (h *ProvisionHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.log(r.Context()).Error("panic while handling request",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.Stack("stack"),
			)
			out := h.Workflow.Recover(r.Context(), rec)
			writeJSON(w, http.StatusOK, ConversationalReply{Reply: h.Formatter.Text(out)})
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *ProvisionHandler) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, h.Logger)
}
