package tms

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tms-provisioning-api/internal/models"
	"tms-provisioning-api/internal/testutil"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:    "valid config",
			config:  &Config{BaseURL: "https://tms.example.com/"},
			wantErr: nil,
		},
		{
			name:    "missing base url",
			config:  &Config{},
			wantErr: ErrConfigMissingBaseURL,
		},
		{
			name:    "relative base url",
			config:  &Config{BaseURL: "tms.example.com"},
			wantErr: ErrConfigInvalidBaseURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://tms.example.com", tt.config.BaseURL)
			assert.Equal(t, DefaultTimeout, tt.config.Timeout)
			assert.NotNil(t, tt.config.Profile)
		})
	}
}

// ---------------------------------------------------------------------------
// Login Tests
// ---------------------------------------------------------------------------

func TestClient_Login(t *testing.T) {
	fake := testutil.NewFakeTMS(t)
	client := newTestClient(t, fake.URL())

	session, err := client.Login(context.Background(), Credentials{Username: "svc", PasswordBase64: "cGFzcw=="})
	require.NoError(t, err)
	assert.Equal(t, models.Session{UserID: "1", UserToken: "token-abc"}, session)

	calls := fake.CallsTo(EndpointLogin)
	require.Len(t, calls, 1)
	form := calls[0].Form
	assert.Equal(t, "svc", form.Get("username"))
	assert.Equal(t, "cGFzcw==", form.Get("password"))
	assert.Equal(t, "null", form.Get("UserID"))
	assert.Equal(t, "null", form.Get("UserToken"))
	assert.Equal(t, "/index.html", form.Get("pageName"))
}

func TestClient_Login_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "empty object", status: http.StatusOK, body: `{}`, wantErr: ErrAuthFailed},
		{name: "missing token", status: http.StatusOK, body: `{"UserID": 7}`, wantErr: ErrAuthFailed},
		{name: "null strings", status: http.StatusOK, body: `{"UserID":"null","UserToken":"null"}`, wantErr: ErrAuthFailed},
		{name: "non-JSON body", status: http.StatusOK, body: `<html>login</html>`, wantErr: ErrAuthFailed},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `slow down`, wantErr: ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeTMS(t)
			fake.On(EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			client := newTestClient(t, fake.URL())

			_, err := client.Login(context.Background(), Credentials{Username: "svc", PasswordBase64: "x"})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotContains(t, err.Error(), "x==")
		})
	}
}

func TestClient_Login_NumericSession(t *testing.T) {
	fake := testutil.NewFakeTMS(t)
	fake.On(EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"UserID": 4321, "UserToken": "abc"}`))
	})
	client := newTestClient(t, fake.URL())

	session, err := client.Login(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "4321", session.UserID)
}

func TestClient_Login_Unavailable(t *testing.T) {
	fake := testutil.NewFakeTMS(t)
	url := fake.URL()
	fake.Server.Close()

	client := newTestClient(t, url)
	_, err := client.Login(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.True(t, IsUnavailable(err))
}

func TestClient_Timeout(t *testing.T) {
	fake := testutil.NewFakeTMS(t)
	fake.On(EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	client, err := NewClient(Config{BaseURL: fake.URL(), Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Login(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

// ---------------------------------------------------------------------------
// User Registry Tests
// ---------------------------------------------------------------------------

func TestClient_FindUserByEmail(t *testing.T) {
	session := models.Session{UserID: "1", UserToken: "tok"}

	t.Run("matches case-insensitively", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.AddUser("54", "other@x.com")
		fake.AddUser("55", "Jane@X.com")
		client := newTestClient(t, fake.URL())

		user, err := client.FindUserByEmail(context.Background(), session, "JANE@x.com")
		require.NoError(t, err)
		assert.Equal(t, "55", user.UserID)
		assert.Equal(t, "jane@x.com", user.Email)

		calls := fake.CallsTo(EndpointSearchUsers)
		require.Len(t, calls, 1)
		assert.Equal(t, "jane@x.com", calls[0].Form.Get("input_email"))
		assert.Equal(t, "0", calls[0].Form.Get("input_group"))
		assert.Equal(t, "1", calls[0].Form.Get("UserID"))
		assert.Equal(t, "tok", calls[0].Form.Get("UserToken"))
		assert.Equal(t, "dashboardUserManager", calls[0].Form.Get("pageName"))
	})

	t.Run("accepts users wrapper", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.On(EndpointSearchUsers, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"users":[{"user_id":77,"user_email":"jane@x.com"}]}`))
		})
		client := newTestClient(t, fake.URL())

		user, err := client.FindUserByEmail(context.Background(), session, "jane@x.com")
		require.NoError(t, err)
		assert.Equal(t, "77", user.UserID)
	})

	t.Run("partial email does not match", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.AddUser("55", "jane@x.com.au")
		client := newTestClient(t, fake.URL())

		_, err := client.FindUserByEmail(context.Background(), session, "jane@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("non-JSON body", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.On(EndpointSearchUsers, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`Fatal error: session expired`))
		})
		client := newTestClient(t, fake.URL())

		_, err := client.FindUserByEmail(context.Background(), session, "jane@x.com")
		assert.ErrorIs(t, err, ErrInvalidResponse)
		assert.Equal(t, "Fatal error: session expired", DiagnosticBody(err))
	})
}

func TestClient_CreateUser(t *testing.T) {
	session := models.Session{UserID: "1", UserToken: "tok"}
	req := models.NewUserRequest("Jane", "Doe", "JANE@x.com", "", "123")

	t.Run("sends fixed profile", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		client := newTestClient(t, fake.URL())

		user, err := client.CreateUser(context.Background(), session, req)
		require.NoError(t, err)
		assert.Equal(t, "101", user.UserID)
		assert.Equal(t, "Temp123!", user.TempPassword)

		calls := fake.CallsTo(EndpointWriteUser)
		require.Len(t, calls, 1)
		form := calls[0].Form
		assert.Equal(t, "jane@x.com", form.Get("input_email"))
		assert.Equal(t, "jane@x.com", form.Get("input_username"))
		assert.Equal(t, "Jane", form.Get("input_firstname"))
		assert.Equal(t, "Doe", form.Get("input_lastname"))
		assert.Equal(t, "1071", form.Get("input_group"))
		assert.Equal(t, "1", form.Get("input_is_vendor"))
		assert.Equal(t, "PST", form.Get("input_timezone"))
		assert.Equal(t, "407987", form.Get("input_warehouse_user"))
		assert.Equal(t, "0", form.Get("input_user_id"))
	})

	t.Run("temp_password fallback", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.On(EndpointWriteUser, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user_id":"9","temp_password":"abc"}`))
		})
		client := newTestClient(t, fake.URL())

		user, err := client.CreateUser(context.Background(), session, req)
		require.NoError(t, err)
		assert.Equal(t, "abc", user.TempPassword)
	})

	t.Run("password not returned", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.Password = ""
		client := newTestClient(t, fake.URL())

		user, err := client.CreateUser(context.Background(), session, req)
		require.NoError(t, err)
		assert.Equal(t, models.PasswordNotReturned, user.TempPassword)
	})

	t.Run("missing user_id", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.On(EndpointWriteUser, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"duplicate username"}`))
		})
		client := newTestClient(t, fake.URL())

		_, err := client.CreateUser(context.Background(), session, req)
		assert.ErrorIs(t, err, ErrInvalidResponse)
		assert.Contains(t, err.Error(), "missing user_id")
		assert.Contains(t, DiagnosticBody(err), "duplicate username")
	})

	t.Run("server error", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.On(EndpointWriteUser, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		client := newTestClient(t, fake.URL())

		_, err := client.CreateUser(context.Background(), session, req)
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})
}

// ---------------------------------------------------------------------------
// Location Contact Tests
// ---------------------------------------------------------------------------

func TestClient_AttachLocationContact(t *testing.T) {
	session := models.Session{UserID: "1", UserToken: "tok"}
	req := models.NewUserRequest("Jane", "Doe", "jane@x.com", "", "123")

	t.Run("success", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		client := newTestClient(t, fake.URL())

		res := client.AttachLocationContact(context.Background(), session, "55", "9000123", req)
		assert.True(t, res.OK())
		assert.Equal(t, "9000123", res.LocationID)
		assert.Equal(t, "501", res.ContactID)

		calls := fake.CallsTo(EndpointLocationContact)
		require.Len(t, calls, 1)
		form := calls[0].Form
		assert.Equal(t, "55", form.Get("input_fk_user_id"))
		assert.Equal(t, "9000123", form.Get("input_fk_location_id"))
		assert.Equal(t, "Jane", form.Get("input_location_contacts_name"))
		assert.Equal(t, "Doe", form.Get("input_location_contacts_lastname"))
		assert.Equal(t, "jane@x.com", form.Get("input_location_contacts_email"))
		assert.Equal(t, "CSR", form.Get("input_location_contacts_type"))
	})

	t.Run("invalid body is reported", func(t *testing.T) {
		fake := testutil.NewFakeTMS(t)
		fake.On(EndpointLocationContact, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`oops`))
		})
		client := newTestClient(t, fake.URL())

		res := client.AttachLocationContact(context.Background(), session, "55", "407987", req)
		assert.False(t, res.OK())
		assert.ErrorIs(t, res.Err, ErrInvalidResponse)
		assert.Equal(t, "unknown", res.ContactIDOrUnknown())
	})

	t.Run("response without contact id is rejected", func(t *testing.T) {
		for _, body := range []string{`{}`, `{"success":false,"error":"location not found"}`, `{"location_contacts_id":""}`} {
			fake := testutil.NewFakeTMS(t)
			fake.On(EndpointLocationContact, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			client := newTestClient(t, fake.URL())

			res := client.AttachLocationContact(context.Background(), session, "55", "407987", req)
			assert.False(t, res.OK(), body)
			assert.ErrorIs(t, res.Err, ErrInvalidResponse, body)
			assert.Equal(t, body, DiagnosticBody(res.Err))
			assert.Equal(t, "unknown", res.ContactIDOrUnknown())
		}
	})
}

// ---------------------------------------------------------------------------
// Order Lookup Tests
// ---------------------------------------------------------------------------

func TestClient_OrderLookup(t *testing.T) {
	session := models.Session{UserID: "1", UserToken: "tok"}

	fake := testutil.NewFakeTMS(t)
	fake.AddOrder("PRO-1", "8001", "9000123")
	client := newTestClient(t, fake.URL())

	orderID, err := client.FindOrderByPRO(context.Background(), session, "PRO-1")
	require.NoError(t, err)
	assert.Equal(t, "8001", orderID)

	loc, err := client.GetOrderVendorLocation(context.Background(), session, orderID)
	require.NoError(t, err)
	assert.Equal(t, "9000123", loc)

	_, err = client.FindOrderByPRO(context.Background(), session, "PRO-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_FindOrderByPRO_Matching(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "exact match wins over untagged record",
			body: `[{"order_id":"1"},{"order_id":"2","pro":"PRO-1"}]`,
			want: "2",
		},
		{
			name:    "untagged record ignored when others carry a pro",
			body:    `[{"order_id":"1"},{"order_id":"2","pro":"PRO-9"}]`,
			wantErr: ErrNotFound,
		},
		{
			name: "untagged record accepted when none carry a pro",
			body: `{"orders":[{"order_id":"1"}]}`,
			want: "1",
		},
		{
			name: "match ignores case and padding",
			body: `[{"order_id":"3","pro":" pro-1 "}]`,
			want: "3",
		},
		{
			name:    "empty result",
			body:    `[]`,
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeTMS(t)
			fake.On(EndpointSearchOrders, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			client := newTestClient(t, fake.URL())

			got, err := client.FindOrderByPRO(context.Background(), models.Session{}, "PRO-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_GetOrderVendorLocation_FkClientFallback(t *testing.T) {
	fake := testutil.NewFakeTMS(t)
	fake.On(EndpointOrderDetail, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fk_client_id": 31337}`))
	})
	client := newTestClient(t, fake.URL())

	loc, err := client.GetOrderVendorLocation(context.Background(), models.Session{}, "8001")
	require.NoError(t, err)
	assert.Equal(t, "31337", loc)
}

// ---------------------------------------------------------------------------
// Observer Tests
// ---------------------------------------------------------------------------

type recordingObserver struct {
	mu      sync.Mutex
	results map[string]string
}

func (o *recordingObserver) ObserveUpstream(endpoint, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[endpoint] = result
}

func TestClient_Observer(t *testing.T) {
	fake := testutil.NewFakeTMS(t)
	fake.On(EndpointSearchUsers, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	obs := &recordingObserver{results: map[string]string{}}
	client, err := NewClient(Config{BaseURL: fake.URL()}, WithObserver(obs))
	require.NoError(t, err)

	session, err := client.Login(context.Background(), Credentials{})
	require.NoError(t, err)
	_, err = client.FindUserByEmail(context.Background(), session, "a@b.c")
	require.Error(t, err)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusServiceUnavailable, respErr.Status)
	assert.Equal(t, "ok", obs.results[EndpointLogin])
	assert.Equal(t, "5xx", obs.results[EndpointSearchUsers])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	// "é" is two bytes; cutting in the middle backs off to the rune boundary
	assert.Equal(t, "a", Truncate("aé", 2))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: baseURL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}
