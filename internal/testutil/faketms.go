package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Call records one form post received by the fake TMS
type Call struct {
	Endpoint string
	Form     url.Values
}

// FakeTMS is an in-memory stand-in for the TMS portal form endpoints
type FakeTMS struct {
	Server *httptest.Server

	mu        sync.Mutex
	calls     []Call
	overrides map[string]http.HandlerFunc
	users     []map[string]string
	orders    map[string]string
	locations map[string]string
	nextUser  int
	nextCt    int

	// Password echoed by user creation; empty omits the field
	Password string
}

// NewFakeTMS starts a fake TMS and closes it when the test ends
func NewFakeTMS(t *testing.T) *FakeTMS {
	t.Helper()

	f := &FakeTMS{
		overrides: map[string]http.HandlerFunc{},
		orders:    map[string]string{},
		locations: map[string]string{},
		nextUser:  100,
		nextCt:    500,
		Password:  "Temp123!",
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake
func (f *FakeTMS) URL() string {
	return f.Server.URL
}

// On replaces the handler for one endpoint
func (f *FakeTMS) On(endpoint string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[endpoint] = h
}

// AddUser seeds an existing user
func (f *FakeTMS) AddUser(userID, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, map[string]string{"user_id": userID, "user_email": email})
}

// AddOrder seeds an order reachable by PRO with the given vendor location
func (f *FakeTMS) AddOrder(pro, orderID, vendorLocationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[pro] = orderID
	f.locations[orderID] = vendorLocationID
}

// Calls returns every call received so far
func (f *FakeTMS) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the calls received by one endpoint
func (f *FakeTMS) CallsTo(endpoint string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Endpoint == endpoint {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeTMS) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Endpoint: r.URL.Path, Form: r.PostForm})
	override, ok := f.overrides[r.URL.Path]
	f.mu.Unlock()

	if ok {
		override(w, r)
		return
	}

	switch r.URL.Path {
	case "/write/check_login.php":
		writeJSON(w, map[string]any{"UserID": "1", "UserToken": "token-abc"})
	case "/write_new/search_group_users.php":
		f.mu.Lock()
		users := append([]map[string]string(nil), f.users...)
		f.mu.Unlock()
		if users == nil {
			users = []map[string]string{}
		}
		writeJSON(w, users)
	case "/write_new/write_company_user.php":
		f.mu.Lock()
		f.nextUser++
		id := fmt.Sprintf("%d", f.nextUser)
		email := r.PostForm.Get("input_email")
		f.users = append(f.users, map[string]string{"user_id": id, "user_email": email})
		password := f.Password
		f.mu.Unlock()
		resp := map[string]any{"user_id": id, "user_email": email}
		if password != "" {
			resp["password"] = password
		}
		writeJSON(w, resp)
	case "/write_new/write_location_contacts_admin.php":
		f.mu.Lock()
		f.nextCt++
		id := f.nextCt
		f.mu.Unlock()
		writeJSON(w, map[string]any{"location_contacts_id": id})
	case "/write_new/search_orders.php":
		pro := strings.TrimSpace(r.PostForm.Get("input_pro"))
		f.mu.Lock()
		orderID, found := f.orders[pro]
		f.mu.Unlock()
		if !found {
			writeJSON(w, []any{})
			return
		}
		writeJSON(w, []map[string]string{{"order_id": orderID, "pro": pro}})
	case "/write_new/get_order.php":
		f.mu.Lock()
		loc := f.locations[r.PostForm.Get("input_order_id")]
		f.mu.Unlock()
		writeJSON(w, map[string]string{"vendor_location_id": loc})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
