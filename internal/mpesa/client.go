package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saccohub/settlement/internal/currency"
	"github.com/saccohub/settlement/internal/domain"
)

// Config holds the credentials and endpoints for the provider API.
type Config struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	PassKey            string
	CallbackURL        string
	B2CResultURL       string
	B2CTimeoutURL      string
	InitiatorName      string
	SecurityCredential string

	HTTPTimeout       time.Duration
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	TokenExpiryMargin time.Duration
}

// Client talks to the provider's REST API. Every call goes through the
// circuit breaker and carries a cached bearer token.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *Breaker
	tokens  *tokenCache
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces time.Now for the breaker, the token cache and request
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, c.now)
	c.tokens = newTokenCache(c.fetchToken, cfg.TokenExpiryMargin, c.now)
	return c
}

func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

func (c *Client) InitiateSTKPush(ctx context.Context, req domain.STKPushRequest) (domain.ProviderAck, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return domain.ProviderAck{}, err
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = c.cfg.CallbackURL
	}

	ts := Timestamp(c.now())
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            currency.WholeUnits(req.Amount),
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       callback,
		AccountReference:  truncate(req.AccountReference, 12),
		TransactionDesc:   truncate(req.Description, 13),
	}

	var resp stkPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp); err != nil {
		return domain.ProviderAck{}, fmt.Errorf("stk push: %w", err)
	}
	if resp.ResponseCode != "0" {
		return domain.ProviderAck{}, fmt.Errorf("stk push: %w", &APIError{
			StatusCode: http.StatusOK, Code: resp.ResponseCode, Message: resp.ResponseDescription, kind: ErrRejected,
		})
	}

	log.Printf("[mpesa] stk push accepted checkout_request_id=%s", resp.CheckoutRequestID)
	return domain.ProviderAck{
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		AckCode:           resp.ResponseCode,
		AckDescription:    resp.ResponseDescription,
	}, nil
}

func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (domain.ProviderStatus, error) {
	ts := Timestamp(c.now())
	body := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp stkQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", body, &resp); err != nil {
		return domain.ProviderStatus{}, fmt.Errorf("stk query %s: %w", checkoutRequestID, err)
	}

	if strings.TrimSpace(resp.ResultCode) == "" {
		return domain.ProviderStatus{}, fmt.Errorf("stk query %s: %w", checkoutRequestID, ErrStillProcessing)
	}
	code, err := strconv.Atoi(strings.TrimSpace(resp.ResultCode))
	if err != nil {
		return domain.ProviderStatus{}, fmt.Errorf("stk query %s: unexpected result code %q: %w",
			checkoutRequestID, resp.ResultCode, ErrProviderUnavailable)
	}
	return domain.ProviderStatus{
		ResultCode: code,
		ResultDesc: resp.ResultDesc,
		QueriedAt:  c.now(),
	}, nil
}

func (c *Client) InitiateB2C(ctx context.Context, req domain.B2CRequest) (domain.ProviderAck, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return domain.ProviderAck{}, err
	}

	body := b2cRequest{
		OriginatorConversationID: uuid.NewString(),
		InitiatorName:            c.cfg.InitiatorName,
		SecurityCredential:       c.cfg.SecurityCredential,
		CommandID:                "BusinessPayment",
		Amount:                   currency.WholeUnits(req.Amount),
		PartyA:                   c.cfg.ShortCode,
		PartyB:                   phone,
		Remarks:                  truncate(req.Remarks, 100),
		QueueTimeOutURL:          c.cfg.B2CTimeoutURL,
		ResultURL:                c.cfg.B2CResultURL,
		Occasion:                 truncate(req.Occasion, 100),
	}

	var resp b2cResponse
	if err := c.post(ctx, "/mpesa/b2c/v1/paymentrequest", body, &resp); err != nil {
		return domain.ProviderAck{}, fmt.Errorf("b2c: %w", err)
	}
	if resp.ResponseCode != "0" {
		return domain.ProviderAck{}, fmt.Errorf("b2c: %w", &APIError{
			StatusCode: http.StatusOK, Code: resp.ResponseCode, Message: resp.ResponseDescription, kind: ErrRejected,
		})
	}

	origID := resp.OriginatorConversationID
	if origID == "" {
		origID = body.OriginatorConversationID
	}
	log.Printf("[mpesa] b2c accepted conversation_id=%s", resp.ConversationID)
	return domain.ProviderAck{
		MerchantRequestID: origID,
		CheckoutRequestID: resp.ConversationID,
		AckCode:           resp.ResponseCode,
		AckDescription:    resp.ResponseDescription,
	}, nil
}

// post sends a JSON request with the bearer token and classifies the
// answer. A 401 drops the cached token and retries once.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		c.breaker.Release()
		return fmt.Errorf("marshal: %w", err)
	}

	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Get(ctx)
		if err != nil {
			c.record(ctx, err)
			return err
		}

		status, respBody, err := c.send(ctx, http.MethodPost, path, bytes.NewReader(payload), func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
			r.Header.Set("Content-Type", "application/json")
		})
		if err != nil {
			c.record(ctx, err)
			return err
		}

		if status == http.StatusUnauthorized && attempt == 0 {
			c.tokens.Invalidate()
			continue
		}

		err = classify(status, respBody)
		c.record(ctx, err)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	status, body, err := c.send(ctx, http.MethodGet, "/oauth/v1/generate?grant_type=client_credentials", nil, func(r *http.Request) {
		r.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	})
	if err != nil {
		return "", 0, fmt.Errorf("fetch token: %w", err)
	}
	if err := classify(status, body); err != nil {
		return "", 0, fmt.Errorf("fetch token: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("decode token: %w", err)
	}
	secs, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || tr.AccessToken == "" {
		return "", 0, fmt.Errorf("fetch token: malformed response: %w", ErrProviderUnavailable)
	}
	return tr.AccessToken, time.Duration(secs) * time.Second, nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, decorate func(*http.Request)) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}
	return resp.StatusCode, respBody, nil
}

// record feeds a classified outcome to the breaker. Only an unhealthy
// provider counts as a failure; the caller giving up counts as nothing.
func (c *Client) record(ctx context.Context, err error) {
	if err != nil && ctx.Err() != nil {
		c.breaker.Release()
		return
	}
	if errors.Is(err, ErrProviderUnavailable) {
		c.breaker.Failure()
		return
	}
	c.breaker.Success()
}

func classify(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var er errorResponse
	_ = json.Unmarshal(body, &er)
	apiErr := &APIError{StatusCode: status, Code: er.ErrorCode, Message: er.ErrorMessage}
	if apiErr.Message == "" {
		apiErr.Message = truncate(string(body), 200)
	}

	switch {
	case er.ErrorCode == errorCodeStillProcessing:
		apiErr.kind = ErrStillProcessing
	case status == http.StatusTooManyRequests:
		apiErr.kind = ErrRateLimited
	case status >= 500:
		apiErr.kind = ErrProviderUnavailable
	default:
		apiErr.kind = ErrRejected
	}
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
