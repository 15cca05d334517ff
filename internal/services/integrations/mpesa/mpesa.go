package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/platform/money"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	SandboxURL    = "https://sandbox.safaricom.co.ke"
	ProductionURL = "https://api.safaricom.co.ke"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	tokenKey = "access_token"
	// tokenSkew expires cached tokens ahead of the provider.
	tokenSkew      = time.Minute
	requestTimeout = 30 * time.Second
	// processingCode is returned by the query API while the customer has
	// not answered the prompt.
	processingCode = "500.001.1001"
)

// Config holds Daraja credentials.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	// Environment is "production" or anything else for sandbox.
	Environment string
	// BaseURL overrides the environment URL.
	BaseURL    string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Enabled reports whether enough credentials are set to call Daraja.
func (c Config) Enabled() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.Shortcode != "" && c.Passkey != ""
}

// PushRequest asks a customer to approve a payment on their phone.
type PushRequest struct {
	Phone            string
	Amount           money.Amount
	AccountReference string
	Description      string
}

// PushResult is an accepted STK push.
type PushResult struct {
	CheckoutRequestID   string `json:"checkout_request_id"`
	MerchantRequestID   string `json:"merchant_request_id"`
	ResponseDescription string `json:"response_description"`
	CustomerMessage     string `json:"customer_message"`
}

// QueryResult is the state of an STK push.
type QueryResult struct {
	// Pending is true while the customer has not answered.
	Pending    bool
	ResultCode string
	ResultDesc string
}

// Succeeded reports a completed payment.
func (r QueryResult) Succeeded() bool {
	return !r.Pending && r.ResultCode == "0"
}

// Gateway is the payment surface the billing service depends on.
type Gateway interface {
	STKPush(ctx context.Context, req PushRequest) (PushResult, error)
	Query(ctx context.Context, checkoutRequestID string) (QueryResult, error)
}

// ErrDisabled is returned by the disabled gateway.
var ErrDisabled = apperrors.New(apperrors.CodeIntegrationDisabled, "M-Pesa payments are not configured")

// Disabled is the gateway used without credentials.
type Disabled struct{}

func (Disabled) STKPush(_ context.Context, req PushRequest) (PushResult, error) {
	log.Printf("mpesa disabled: reject push for %s", req.AccountReference)
	return PushResult{}, ErrDisabled
}

func (Disabled) Query(context.Context, string) (QueryResult, error) {
	return QueryResult{}, ErrDisabled
}

// Client calls Daraja over HTTP.
type Client struct {
	cfg    Config
	base   string
	http   *http.Client
	tokens *cache.Cache
	now    func() time.Time
}

var _ Gateway = (*Client)(nil)

// NewGateway returns a Client, or Disabled when credentials are missing.
func NewGateway(cfg Config) Gateway {
	if !cfg.Enabled() {
		return Disabled{}
	}
	return NewClient(cfg)
}

// NewClient builds a Daraja client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = SandboxURL
		if strings.EqualFold(strings.TrimSpace(cfg.Environment), "production") {
			base = ProductionURL
		}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		cfg:    cfg,
		base:   base,
		http:   httpClient,
		tokens: cache.New(cache.NoExpiration, 10*time.Minute),
		now:    now,
	}
}

// NormalizePhone converts a local number into 2547XXXXXXXX form.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "0") {
		phone = "254" + phone[1:]
	}
	if !strings.HasPrefix(phone, "254") {
		phone = "254" + phone
	}
	return phone
}

// Timestamp formats t as YYYYMMDDHHMMSS in East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(eat).Format("20060102150405")
}

var eat = time.FixedZone("EAT", 3*60*60)

// Password is base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// wholeUnits rounds up to whole shillings; Daraja rejects fractions.
func wholeUnits(a money.Amount) int64 {
	units := int64(a) / 100
	if int64(a)%100 > 0 {
		units++
	}
	return units
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if cached, ok := c.tokens.Get(tokenKey); ok {
		return cached.(string), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request token: status %d", resp.StatusCode)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	ttl := time.Hour
	if seconds, err := time.ParseDuration(strings.TrimSpace(payload.ExpiresIn) + "s"); err == nil && seconds > 0 {
		ttl = seconds
	}
	if ttl > tokenSkew {
		ttl -= tokenSkew
	}
	c.tokens.Set(tokenKey, payload.AccessToken, ttl)
	return payload.AccessToken, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (int, map[string]any, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return 0, nil, apperrors.Wrap(apperrors.CodePaymentFailed, "Failed to authenticate with M-Pesa", err)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, apperrors.Wrap(apperrors.CodePaymentFailed, "M-Pesa request failed", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	result := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, result, nil
}

func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// STKPush sends a CustomerPayBillOnline prompt.
func (c *Client) STKPush(ctx context.Context, req PushRequest) (PushResult, error) {
	timestamp := Timestamp(c.now())
	phone := NormalizePhone(req.Phone)
	status, result, err := c.post(ctx, pushPath, map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          Password(c.cfg.Shortcode, c.cfg.Passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            wholeUnits(req.Amount),
		"PartyA":            phone,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	})
	if err != nil {
		return PushResult{}, err
	}
	if status != http.StatusOK || field(result, "ResponseCode") != "0" {
		message := field(result, "errorMessage")
		if message == "" {
			message = "Payment initiation failed"
		}
		return PushResult{}, apperrors.New(apperrors.CodePaymentFailed, message)
	}
	return PushResult{
		CheckoutRequestID:   field(result, "CheckoutRequestID"),
		MerchantRequestID:   field(result, "MerchantRequestID"),
		ResponseDescription: field(result, "ResponseDescription"),
		CustomerMessage:     field(result, "CustomerMessage"),
	}, nil
}

// Query asks for the state of a push by checkout request id.
func (c *Client) Query(ctx context.Context, checkoutRequestID string) (QueryResult, error) {
	timestamp := Timestamp(c.now())
	status, result, err := c.post(ctx, queryPath, map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          Password(c.cfg.Shortcode, c.cfg.Passkey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	})
	if err != nil {
		return QueryResult{}, err
	}
	if field(result, "errorCode") == processingCode {
		return QueryResult{Pending: true, ResultDesc: field(result, "errorMessage")}, nil
	}
	if status != http.StatusOK {
		message := field(result, "errorMessage")
		if message == "" {
			message = fmt.Sprintf("status query failed with HTTP %d", status)
		}
		return QueryResult{}, apperrors.New(apperrors.CodePaymentFailed, message)
	}
	return QueryResult{
		ResultCode: field(result, "ResultCode"),
		ResultDesc: field(result, "ResultDesc"),
	}, nil
}
