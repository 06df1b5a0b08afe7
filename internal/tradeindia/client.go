package tradeindia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MaxBodyBytes caps how much of an upstream response is buffered.
const MaxBodyBytes = 16 << 20

// Credentials authenticate the proxy against the inquiry API.
type Credentials struct {
	UserID    string
	ProfileID string
	Key       string
}

// Query is a validated lead query. Dates are YYYY-MM-DD.
type Query struct {
	FromDate string
	ToDate   string
	Limit    int
	PageNo   int
}

// Error is returned for any failed upstream call. Message never contains the
// request URL, so it is safe to hand back to callers.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("tradeindia error (%d)", e.Status)
}

// The upstream sits behind CloudFront, which rejects requests that do not look
// like they came from a browser.
var browserHeaders = map[string]string{
	"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":           "application/json, text/javascript, */*; q=0.01",
	"Accept-Language":  "en-US,en;q=0.9",
	"X-Requested-With": "XMLHttpRequest",
	"Referer":          "https://www.tradeindia.com/",
	"Origin":           "https://www.tradeindia.com",
}

type Client struct {
	endpoint string
	creds    Credentials
	hc       *http.Client
}

func NewClient(endpoint string, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		creds:    creds,
		hc: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchLeads performs one GET against the inquiry endpoint and returns the raw
// response body. There is no retry.
func (c *Client) FetchLeads(ctx context.Context, q Query) ([]byte, error) {
	u, err := c.requestURL(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Message: "build upstream request: invalid endpoint"}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &Error{Message: "upstream request failed: " + redact(err).Error()}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "read upstream response: " + redact(err).Error()}
	}
	if len(b) > MaxBodyBytes {
		return nil, &Error{Status: resp.StatusCode, Message: "upstream response exceeds " + strconv.Itoa(MaxBodyBytes) + " bytes"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Request failed with status code %d", resp.StatusCode),
		}
	}
	return b, nil
}

func (c *Client) requestURL(q Query) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &Error{Message: "build upstream request: invalid endpoint"}
	}
	v := u.Query()
	v.Set("userid", c.creds.UserID)
	v.Set("profile_id", c.creds.ProfileID)
	v.Set("key", c.creds.Key)
	v.Set("from_date", q.FromDate)
	v.Set("to_date", q.ToDate)
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("page_no", strconv.Itoa(q.PageNo))
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// redact drops the request URL (which carries the signing key) from errors
// produced by http.Client.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
