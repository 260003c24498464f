package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tms-provisioning-api/internal/auth"
	"tms-provisioning-api/internal/logger"
	"tms-provisioning-api/pkg/importer"
)

// importWriteSlack leaves room to write the summary after the import deadline
const importWriteSlack = 10 * time.Second

// ImportsHandler handles bulk provisioning from Excel sheets
type ImportsHandler struct {
	Provisioner importer.Provisioner
	MaxBytes    int64
	MaxRows     int
	Logger      *zap.Logger

	// Timeout bounds one upload and replaces the server write timeout for it.
	// Zero leaves the server defaults in place.
	Timeout time.Duration
}

// NewImportsHandler creates a new imports handler
func NewImportsHandler(p importer.Provisioner, l *zap.Logger) *ImportsHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &ImportsHandler{
		Provisioner: p,
		MaxBytes:    20 << 20, // 20 MB
		MaxRows:     200,
		Logger:      l,
	}
}

// UploadExcel provisions one account per requester row of an uploaded sheet
func (h *ImportsHandler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Timeout > 0 {
		err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.Timeout + importWriteSlack))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.FromContextOr(ctx, h.Logger).Warn("failed to extend write deadline", zap.Error(err))
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, "content-type must be multipart/form-data", "INVALID_CONTENT_TYPE", http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		writeError(w, "invalid multipart form: "+err.Error(), "INVALID_FORM", http.StatusBadRequest)
		return
	}

	dryRun := r.FormValue("dry_run") == "true"
	maxErrors := 50
	if v := r.FormValue("max_errors"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxErrors = n
		}
	}

	mapping, ok := h.mapping(w, r)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "file is required: "+err.Error(), "FILE_REQUIRED", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		writeError(w, "only .xlsx files are accepted", "INVALID_FILE_TYPE", http.StatusBadRequest)
		return
	}

	log := logger.FromContextOr(ctx, h.Logger).With(
		zap.String("caller", auth.CallerFromContext(ctx)),
		zap.String("file", header.Filename),
		zap.Bool("dry_run", dryRun),
	)

	sum, impErr := importer.ImportExcel(ctx, h.Provisioner, file, importer.ImportOptions{
		Mapping:   mapping,
		DryRun:    dryRun,
		MaxRows:   h.MaxRows,
		MaxErrors: maxErrors,
	})
	if impErr != nil {
		log.Warn("excel import failed", zap.Error(impErr), zap.Int("rows", sum.Rows))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "IMPORT_FAILED",
			"details": impErr.Error(),
			"data":    sum,
		})
		return
	}

	log.Info("excel import finished",
		zap.Int("rows", sum.Rows),
		zap.Int("created", sum.Created),
		zap.Int("existing", sum.Existing),
		zap.Int("errors", sum.Errors),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		},
	})
}

// mapping reads the optional YAML mapping part; a nil mapping selects the default
func (h *ImportsHandler) mapping(w http.ResponseWriter, r *http.Request) (*importer.Mapping, bool) {
	part, _, err := r.FormFile("mapping")
	if err == http.ErrMissingFile {
		return nil, true
	}
	if err != nil {
		writeError(w, "invalid mapping: "+err.Error(), "INVALID_MAPPING", http.StatusBadRequest)
		return nil, false
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, "invalid mapping: "+err.Error(), "INVALID_MAPPING", http.StatusBadRequest)
		return nil, false
	}
	m, err := importer.ParseMapping(data)
	if err != nil {
		writeError(w, "invalid mapping: "+err.Error(), "INVALID_MAPPING", http.StatusBadRequest)
		return nil, false
	}
	return m, true
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	return strings.HasSuffix(strings.ToLower(h.Filename), ".xlsx")
}

// ErrorResponse is the body of every rejected request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
