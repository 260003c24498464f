package tms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tms-provisioning-api/internal/models"
)

// maxResponseSize is the maximum allowed response size from the TMS (2MB)
const maxResponseSize = 2 * 1024 * 1024

// DefaultTimeout applies to every outbound call when none is configured
const DefaultTimeout = 10 * time.Second

// Endpoints exposed by the TMS portal
const (
	EndpointLogin           = "/write/check_login.php"
	EndpointSearchUsers     = "/write_new/search_group_users.php"
	EndpointWriteUser       = "/write_new/write_company_user.php"
	EndpointLocationContact = "/write_new/write_location_contacts_admin.php"
	EndpointSearchOrders    = "/write_new/search_orders.php"
	EndpointOrderDetail     = "/write_new/get_order.php"
)

// Credentials is the service account used to log into the TMS
type Credentials struct {
	Username       string
	PasswordBase64 string
}

// Observer receives the outcome of every outbound call
type Observer interface {
	ObserveUpstream(endpoint, result string, elapsed time.Duration)
}

// Config holds the TMS client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Profile *Profile
}

// Validate validates the TMS client configuration and fills defaults
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrConfigInvalidBaseURL, c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Profile == nil {
		c.Profile = DefaultProfile()
	}
	return nil
}

// Client talks to the TMS portal through its form endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	profile    *Profile
	observer   Observer
	logger     *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver reports call latency and results to o
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new TMS client with the given configuration
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		profile: cfg.Profile,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login authenticates the service account and returns a fresh session
func (c *Client) Login(ctx context.Context, creds Credentials) (models.Session, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.PasswordBase64)
	form.Set("UserID", "null")
	form.Set("UserToken", "null")
	form.Set("pageName", c.profile.LoginPageName)

	body, status, err := c.postForm(ctx, EndpointLogin, form)
	if err != nil {
		return models.Session{}, err
	}
	// Rate limits and gateway errors on login surface as authentication failures.
	if status >= 400 {
		return models.Session{}, newResponseError(ErrAuthFailed, EndpointLogin, status, "login rejected", body)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logInvalid(EndpointLogin, body)
		return models.Session{}, newResponseError(ErrAuthFailed, EndpointLogin, status, "login returned non-JSON body", body)
	}
	if !resp.UserID.usable() || !resp.UserToken.usable() {
		return models.Session{}, newResponseError(ErrAuthFailed, EndpointLogin, status, "login response missing UserID or UserToken", body)
	}

	return models.Session{UserID: string(resp.UserID), UserToken: string(resp.UserToken)}, nil
}

// FindUserByEmail searches the user manager and matches the email case-insensitively
func (c *Client) FindUserByEmail(ctx context.Context, session models.Session, email string) (models.TmsUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	form := c.sessionForm(session, c.profile.PageName)
	form.Set("input_email", email)
	form.Set("input_group", "0")

	body, err := c.call(ctx, EndpointSearchUsers, form)
	if err != nil {
		return models.TmsUser{}, err
	}

	var records []userRecord
	if isJSONArray(body) {
		err = json.Unmarshal(body, &records)
	} else {
		var wrapped userList
		err = json.Unmarshal(body, &wrapped)
		records = wrapped.Users
	}
	if err != nil {
		c.logInvalid(EndpointSearchUsers, body)
		return models.TmsUser{}, newResponseError(ErrInvalidResponse, EndpointSearchUsers, 0, "search returned non-JSON body", body)
	}

	for _, rec := range records {
		if strings.ToLower(strings.TrimSpace(rec.UserEmail)) == email && rec.UserID.usable() {
			return models.TmsUser{UserID: string(rec.UserID), Email: email}, nil
		}
	}
	return models.TmsUser{}, ErrNotFound
}

// CreateUser writes a new vendor user with the fixed profile fields
func (c *Client) CreateUser(ctx context.Context, session models.Session, req models.UserRequest) (models.TmsUser, error) {
	form := c.sessionForm(session, c.profile.PageName)
	for k, v := range c.profile.User {
		form.Set(k, v)
	}
	form.Set("input_email", req.Email)
	form.Set("input_username", req.Email)
	form.Set("input_firstname", req.FirstName)
	form.Set("input_lastname", req.LastName)

	body, err := c.call(ctx, EndpointWriteUser, form)
	if err != nil {
		return models.TmsUser{}, err
	}

	var resp createUserResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logInvalid(EndpointWriteUser, body)
		return models.TmsUser{}, newResponseError(ErrInvalidResponse, EndpointWriteUser, 0, "creation returned non-JSON body", body)
	}
	if !resp.UserID.usable() {
		return models.TmsUser{}, newResponseError(ErrInvalidResponse, EndpointWriteUser, 0, "creation response missing user_id", body)
	}

	password := resp.Password
	if password == "" {
		password = resp.TempPassword
	}
	if password == "" {
		password = models.PasswordNotReturned
	}

	return models.TmsUser{
		UserID:       string(resp.UserID),
		Email:        req.Email,
		TempPassword: password,
	}, nil
}

// AttachLocationContact links a user to a location as a CSR contact.
// Failures are reported in the returned value, never dropped.
func (c *Client) AttachLocationContact(ctx context.Context, session models.Session, userID, locationID string, req models.UserRequest) models.LocationContact {
	result := models.LocationContact{LocationID: locationID}

	form := c.sessionForm(session, c.profile.PageName)
	for k, v := range c.profile.Contact {
		form.Set(k, v)
	}
	form.Set("input_fk_user_id", userID)
	form.Set("input_location_contacts_name", req.FirstName)
	form.Set("input_location_contacts_lastname", req.LastName)
	form.Set("input_location_contacts_email", req.Email)
	form.Set("input_fk_location_id", locationID)

	body, err := c.call(ctx, EndpointLocationContact, form)
	if err != nil {
		result.Err = err
		return result
	}

	var resp locationContactResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logInvalid(EndpointLocationContact, body)
		result.Err = newResponseError(ErrInvalidResponse, EndpointLocationContact, 0, "contact write returned non-JSON body", body)
		return result
	}
	if !resp.LocationContactsID.usable() {
		c.logInvalid(EndpointLocationContact, body)
		result.Err = newResponseError(ErrInvalidResponse, EndpointLocationContact, 0, "contact write response missing location_contacts_id", body)
		return result
	}
	result.ContactID = string(resp.LocationContactsID)
	return result
}

// FindOrderByPRO returns the order ID for a PRO number
func (c *Client) FindOrderByPRO(ctx context.Context, session models.Session, pro string) (string, error) {
	form := c.sessionForm(session, c.profile.OrderPageName)
	form.Set("input_pro", pro)

	body, err := c.call(ctx, EndpointSearchOrders, form)
	if err != nil {
		return "", err
	}

	var records []orderRecord
	if isJSONArray(body) {
		err = json.Unmarshal(body, &records)
	} else {
		var wrapped orderList
		err = json.Unmarshal(body, &wrapped)
		records = wrapped.Orders
	}
	if err != nil {
		c.logInvalid(EndpointSearchOrders, body)
		return "", newResponseError(ErrInvalidResponse, EndpointSearchOrders, 0, "order search returned non-JSON body", body)
	}

	return matchOrder(records, pro)
}

// matchOrder picks the record whose pro equals want. Records without a pro
// are only trusted when no record in the result carries one.
func matchOrder(records []orderRecord, want string) (string, error) {
	want = strings.TrimSpace(want)
	var untagged string
	tagged := false
	for _, rec := range records {
		if !rec.OrderID.usable() {
			continue
		}
		pro := strings.TrimSpace(rec.PRO)
		if pro == "" {
			if untagged == "" {
				untagged = string(rec.OrderID)
			}
			continue
		}
		tagged = true
		if strings.EqualFold(pro, want) {
			return string(rec.OrderID), nil
		}
	}
	if !tagged && untagged != "" {
		return untagged, nil
	}
	return "", ErrNotFound
}

// GetOrderVendorLocation returns the vendor location of an order.
// vendor_location_id wins over fk_client_id when both are present.
func (c *Client) GetOrderVendorLocation(ctx context.Context, session models.Session, orderID string) (string, error) {
	form := c.sessionForm(session, c.profile.OrderPageName)
	form.Set("input_order_id", orderID)

	body, err := c.call(ctx, EndpointOrderDetail, form)
	if err != nil {
		return "", err
	}

	var resp orderDetailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logInvalid(EndpointOrderDetail, body)
		return "", newResponseError(ErrInvalidResponse, EndpointOrderDetail, 0, "order detail returned non-JSON body", body)
	}
	switch {
	case resp.VendorLocationID.usable():
		return string(resp.VendorLocationID), nil
	case resp.FkClientID.usable():
		return string(resp.FkClientID), nil
	default:
		return "", ErrNotFound
	}
}

func (c *Client) sessionForm(session models.Session, pageName string) url.Values {
	form := url.Values{}
	form.Set("UserID", session.UserID)
	form.Set("UserToken", session.UserToken)
	form.Set("pageName", pageName)
	return form
}

// call posts a form and maps HTTP errors onto the error kinds
func (c *Client) call(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	body, status, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, newResponseError(ErrAuthFailed, endpoint, status, "session rejected", body)
	case status >= 500:
		return nil, newResponseError(ErrUpstreamUnavailable, endpoint, status, "", body)
	case status >= 400:
		return nil, newResponseError(ErrInvalidResponse, endpoint, status, "request rejected", body)
	}
	return body, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("tms: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, "unavailable", start)
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.observe(endpoint, "unavailable", start)
		return nil, resp.StatusCode, fmt.Errorf("%w: %s: failed to read response: %v", ErrUpstreamUnavailable, endpoint, err)
	}

	c.observe(endpoint, statusResult(resp.StatusCode), start)
	return body, resp.StatusCode, nil
}

func (c *Client) observe(endpoint, result string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(endpoint, result, time.Since(start))
	}
}

func (c *Client) logInvalid(endpoint string, body []byte) {
	c.logger.Warn("non-JSON response from TMS",
		zap.String("endpoint", endpoint),
		zap.String("body", Truncate(string(body), maxDiagnosticBody)),
	)
}

func statusResult(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "ok"
	}
}

// IsUnavailable reports whether err is a transport-level failure
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
