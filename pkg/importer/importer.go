package importer

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tealeg/xlsx/v3"
	"gopkg.in/yaml.v3"

	"tms-provisioning-api/internal/intake"
	"tms-provisioning-api/internal/models"
	"tms-provisioning-api/internal/provision"
)

//go:embed mapping.yaml
var defaultMapping []byte

// Fields every mapping must know how to find
var requiredFields = []string{"first_name", "last_name", "email", "po", "pro"}

var (
	// ErrNoSheet indicates the workbook has no sheet to read
	ErrNoSheet = errors.New("importer: sheet not found")
	// ErrNoHeader indicates no column header matched the mapping
	ErrNoHeader = errors.New("importer: no recognised column headers")
	// ErrTooManyRows indicates the sheet exceeds ImportOptions.MaxRows
	ErrTooManyRows = errors.New("importer: too many rows")
)

// ImportOptions defines the configuration for a bulk provisioning run
type ImportOptions struct {
	Mapping     *Mapping // takes precedence over MappingPath
	MappingPath string   // empty uses the embedded mapping
	DryRun      bool     // normalize rows without calling the TMS
	MaxRows     int      // default 200
	MaxErrors   int      // default 50; the run stops once exceeded
}

// Mapping lists the header aliases for each request field
type Mapping struct {
	Version int                 `yaml:"version"`
	Sheet   string              `yaml:"sheet"`
	Columns map[string][]string `yaml:"columns"`
}

// Provisioner runs the workflow for one request
type Provisioner interface {
	Handle(ctx context.Context, p intake.Payload) provision.Outcome
}

// RowResult is the outcome of one sheet row
type RowResult struct {
	Row              int    `json:"row"`
	Email            string `json:"email,omitempty"`
	State            string `json:"state"`
	Created          bool   `json:"created,omitempty"`
	Partial          bool   `json:"partial,omitempty"`
	UserID           string `json:"user_id,omitempty"`
	VendorLocationID string `json:"vendor_location_id,omitempty"`
	Password         string `json:"password,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Sheet    string      `json:"sheet"`
	Rows     int         `json:"rows"`
	Created  int         `json:"created"`
	Existing int         `json:"existing"`
	Skipped  int         `json:"skipped"`
	Errors   int         `json:"errors"`
	DryRun   bool        `json:"dry_run"`
	Results  []RowResult `json:"results"`
}

// Row is one requester read from the sheet; Number is the 1-based sheet row
type Row struct {
	Number int
	Fields intake.StructuredFields
}

// DefaultMapping returns the embedded column mapping
func DefaultMapping() *Mapping {
	m, err := ParseMapping(defaultMapping)
	if err != nil {
		panic(fmt.Sprintf("importer: embedded mapping is invalid: %v", err))
	}
	return m
}

// LoadMapping reads a mapping file; an empty path returns the default mapping
func LoadMapping(path string) (*Mapping, error) {
	if path == "" {
		return DefaultMapping(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping config: %w", err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes a YAML mapping
func ParseMapping(data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping config: %w", err)
	}
	for _, field := range requiredFields {
		if len(m.Columns[field]) == 0 {
			return nil, fmt.Errorf("mapping has no aliases for %q", field)
		}
	}
	return &m, nil
}

// resolveHeader maps a header cell to a request field, or "" when unknown
func (m *Mapping) resolveHeader(header string) string {
	header = strings.TrimSpace(header)
	for field, aliases := range m.Columns {
		for _, alias := range aliases {
			if strings.EqualFold(alias, header) {
				return field
			}
		}
	}
	return ""
}

// ReadRows reads requester rows from an .xlsx workbook. Blank rows are dropped.
func ReadRows(r io.Reader, m *Mapping) (string, []Row, error) {
	// xlsx needs random access, so the workbook is read into memory first
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read Excel file: %w", err)
	}
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open Excel file: %w", err)
	}

	sheet, err := pickSheet(xlFile, m.Sheet)
	if err != nil {
		return "", nil, err
	}

	columns := map[int]string{}
	var rows []Row
	err = sheet.ForEachRow(func(row *xlsx.Row) error {
		rowIdx := row.GetCoordinate()
		values := map[string]string{}
		cellErr := row.ForEachCell(func(cell *xlsx.Cell) error {
			colIdx, _ := cell.GetCoordinates()
			value := strings.TrimSpace(cell.String())
			if rowIdx == 0 {
				if field := m.resolveHeader(value); field != "" {
					columns[colIdx] = field
				}
				return nil
			}
			if field, ok := columns[colIdx]; ok && value != "" {
				values[field] = value
			}
			return nil
		}, xlsx.SkipEmptyCells)
		if cellErr != nil || rowIdx == 0 || len(values) == 0 {
			return cellErr
		}
		rows = append(rows, Row{
			Number: rowIdx + 1,
			Fields: intake.StructuredFields{
				FirstName: values["first_name"],
				LastName:  values["last_name"],
				Email:     values["email"],
				PO:        values["po"],
				PRO:       values["pro"],
			},
		})
		return nil
	})
	if err != nil {
		return sheet.Name, nil, fmt.Errorf("failed to read sheet %q: %w", sheet.Name, err)
	}
	if len(columns) == 0 {
		return sheet.Name, nil, ErrNoHeader
	}
	return sheet.Name, rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, ErrNoSheet
		}
		return f.Sheets[0], nil
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSheet, name)
	}
	return sheet, nil
}

// ImportExcel provisions every requester in the workbook, one row at a time
func ImportExcel(ctx context.Context, p Provisioner, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun:  opts.DryRun,
		Results: []RowResult{},
	}

	if opts.MaxRows == 0 {
		opts.MaxRows = 200
	}
	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}

	mapping := opts.Mapping
	if mapping == nil {
		var err error
		if mapping, err = LoadMapping(opts.MappingPath); err != nil {
			return summary, err
		}
	}

	sheetName, rows, err := ReadRows(r, mapping)
	summary.Sheet = sheetName
	if err != nil {
		return summary, err
	}
	if len(rows) > opts.MaxRows {
		return summary, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(rows), opts.MaxRows)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Rows++

		result := importRow(ctx, p, row, opts.DryRun)
		summary.Results = append(summary.Results, result)

		switch {
		case result.State == string(provision.StateMissingFields), result.State == string(provision.StateNoPoPro):
			summary.Skipped++
		case result.Error != "":
			summary.Errors++
		case result.Created:
			summary.Created++
		case result.State == string(provision.StateDone):
			summary.Existing++
		}

		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
		}
	}
	return summary, nil
}

func importRow(ctx context.Context, p Provisioner, row Row, dryRun bool) RowResult {
	if dryRun {
		req, verdict := intake.Normalize(row.Fields)
		result := RowResult{Row: row.Number, Email: req.Email, State: "valid"}
		switch verdict {
		case intake.VerdictMissingFields:
			result.State = string(provision.StateMissingFields)
		case intake.VerdictNoPoPro:
			result.State = string(provision.StateNoPoPro)
		}
		return result
	}

	out := p.Handle(ctx, row.Fields)
	result := RowResult{
		Row:              row.Number,
		Email:            out.Request.Email,
		State:            string(out.State),
		Created:          out.Created,
		Partial:          out.Partial(),
		UserID:           out.User.UserID,
		VendorLocationID: out.VendorLocationID,
	}
	if out.Created {
		result.Password = out.User.TempPassword
		if result.Password == "" {
			result.Password = models.PasswordNotReturned
		}
	}
	if out.Err != nil {
		result.Error = out.Err.Error()
	}
	return result
}
