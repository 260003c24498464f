package intake

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tms-provisioning-api/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNormalize_TextBlock(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    models.UserRequest
		verdict Verdict
	}{
		{
			name: "complete block",
			text: "first_name-Jane\nlast_name-Doe\nemail-JANE@x.com\npo-\npro-123",
			want: models.UserRequest{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", PRO: "123"},
		},
		{
			name: "keys are case-insensitive and values trimmed",
			text: "  FIRST_NAME- Jane \r\nLast_Name-Doe\r\nEmail-jane@x.com\r\nPO- 4500012 ",
			want: models.UserRequest{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", PO: "4500012"},
		},
		{
			name: "value keeps later dashes",
			text: "first_name-Mary-Jane\nlast_name-Doe\nemail-mj-doe@x.com\npro-A-1",
			want: models.UserRequest{FirstName: "Mary-Jane", LastName: "Doe", Email: "mj-doe@x.com", PRO: "A-1"},
		},
		{
			name: "first occurrence wins",
			text: "first_name-Jane\nfirst_name-Joan\nlast_name-Doe\nemail-jane@x.com\npro-1",
			want: models.UserRequest{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", PRO: "1"},
		},
		{
			name:    "blank form",
			text:    "first_name-\nlast_name-\nemail-\npo-\npro-",
			want:    models.UserRequest{},
			verdict: VerdictMissingFields,
		},
		{
			name:    "missing email",
			text:    "first_name-Jane\nlast_name-Doe\npro-1",
			want:    models.UserRequest{FirstName: "Jane", LastName: "Doe", PRO: "1"},
			verdict: VerdictMissingFields,
		},
		{
			name:    "no po or pro",
			text:    "first_name-Jane\nlast_name-Doe\nemail-jane@x.com",
			want:    models.UserRequest{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"},
			verdict: VerdictNoPoPro,
		},
		{
			name:    "free text without keys",
			text:    "please give Jane an account",
			want:    models.UserRequest{},
			verdict: VerdictMissingFields,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, verdict := Normalize(TextBlock(tt.text))
			assert.Equal(t, tt.verdict, verdict)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_StructuredFields(t *testing.T) {
	got, verdict := Normalize(StructuredFields{FirstName: "Jane", LastName: "Doe", Email: " JANE@x.com ", PRO: "123"})
	assert.Equal(t, VerdictOK, verdict)
	assert.Equal(t, "jane@x.com", got.Email)

	_, verdict = Normalize(StructuredFields{FirstName: "Jane", Email: "jane@x.com", PO: "1"})
	assert.Equal(t, VerdictMissingFields, verdict)

	_, verdict = Normalize(StructuredFields{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	assert.Equal(t, VerdictNoPoPro, verdict)

	// missing identity is reported ahead of a missing key
	_, verdict = Normalize(StructuredFields{})
	assert.Equal(t, VerdictMissingFields, verdict)

	_, verdict = Normalize(nil)
	assert.Equal(t, VerdictMissingFields, verdict)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        Payload
		wantErr     error
	}{
		{
			name:        "json text envelope",
			contentType: "application/json",
			body:        `{"text":"first_name-Jane"}`,
			want:        TextBlock("first_name-Jane"),
		},
		{
			name:        "json structured fields",
			contentType: "application/json; charset=utf-8",
			body:        `{"first_name":"Jane","last_name":"Doe","email":"jane@x.com","pro":"1"}`,
			want:        StructuredFields{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", PRO: "1"},
		},
		{
			name:        "json both shapes",
			contentType: "application/json",
			body:        `{"text":"first_name-Jane","email":"jane@x.com"}`,
			wantErr:     ErrAmbiguousInput,
		},
		{
			name:        "json with no known fields",
			contentType: "application/json",
			body:        `{"hello":"world"}`,
			wantErr:     ErrEmptyInput,
		},
		{
			name:        "json malformed",
			contentType: "application/json",
			body:        `{"text":`,
			wantErr:     ErrMalformedInput,
		},
		{
			name:        "no content type defaults to json",
			contentType: "",
			body:        `{"text":"pro-1"}`,
			want:        TextBlock("pro-1"),
		},
		{
			name:        "plain text",
			contentType: "text/plain",
			body:        "first_name-Jane\nemail-jane@x.com",
			want:        TextBlock("first_name-Jane\nemail-jane@x.com"),
		},
		{
			name:        "form fields",
			contentType: "application/x-www-form-urlencoded",
			body:        "first_name=Jane&last_name=Doe&email=jane%40x.com&po=9",
			want:        StructuredFields{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", PO: "9"},
		},
		{
			name:        "form text",
			contentType: "application/x-www-form-urlencoded",
			body:        "text=pro-1",
			want:        TextBlock("pro-1"),
		},
		{
			name:        "empty body",
			contentType: "application/json",
			body:        "   ",
			wantErr:     ErrEmptyInput,
		},
		{
			name:        "plain text at the size cap",
			contentType: "text/plain",
			body:        "pro-1\n" + strings.Repeat("x", maxBodyBytes-6),
			want:        TextBlock("pro-1\n" + strings.Repeat("x", maxBodyBytes-6)),
		},
		{
			name:        "plain text over the size cap",
			contentType: "text/plain",
			body:        "pro-1\n" + strings.Repeat("x", maxBodyBytes),
			wantErr:     ErrMalformedInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/tms", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			got, err := Decode(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "ok", VerdictOK.String())
	assert.Equal(t, "missing_fields", VerdictMissingFields.String())
	assert.Equal(t, "no_po_pro", VerdictNoPoPro.String())
}
