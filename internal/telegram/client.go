package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/userdir/internal/crypto"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Client sends messages through the Bot API.
type Client struct {
	apiURL string
	token  string
	http   *http.Client
}

// NewClient constructs a client. An empty apiURL selects DefaultAPIURL; a
// nil httpClient gets a 10s timeout client.
func NewClient(apiURL, token string, httpClient *http.Client) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{apiURL: strings.TrimRight(apiURL, "/"), token: token, http: httpClient}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// SendMessage posts msg to sendMessage and fails unless the API answers ok.
func (c *Client) SendMessage(ctx context.Context, msg OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	url := c.apiURL + "/bot" + c.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// the URL carries the token; keep it out of the error
		return fmt.Errorf("telegram sendMessage: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("telegram sendMessage: status %d: %w", resp.StatusCode, err)
	}
	if !ar.OK {
		return fmt.Errorf("telegram sendMessage: %d %s", ar.ErrorCode, ar.Description)
	}
	return nil
}

func unwrapURLError(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok && u.Unwrap() != nil {
		return u.Unwrap()
	}
	return err
}

// VerifySecret compares the webhook secret header with the configured one in
// constant time. An empty configured secret disables the check.
func VerifySecret(got, want string) bool {
	if want == "" {
		return true
	}
	return crypto.Equal(got, want)
}
