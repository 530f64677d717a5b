package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"roadcall.app/dispatch/core/config"
)

// twilioClient talks to a Twilio-compatible messaging REST API.
type twilioClient struct {
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

func NewTwilioClient(cfg config.GatewayConfig) Client {
	return &twilioClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
	}
}

type twilioMessage struct {
	SID          string `json:"sid"`
	From         string `json:"from"`
	To           string `json:"to"`
	Body         string `json:"body"`
	Status       string `json:"status"`
	Direction    string `json:"direction"`
	DateSent     string `json:"date_sent"`
	DateCreated  string `json:"date_created"`
	ErrorMessage string `json:"error_message"`
}

type twilioMessageList struct {
	Messages []twilioMessage `json:"messages"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *twilioClient) Send(ctx context.Context, from, to, body string) (*ProviderMessage, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	return withRetry(ctx, "send", func() (*ProviderMessage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("building send request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.accountSID, c.authToken)

		var msg twilioMessage
		if err := c.do(req, &msg); err != nil {
			return nil, err
		}
		return toProviderMessage(msg), nil
	})
}

func (c *twilioClient) List(ctx context.Context, since time.Time, limit int) ([]ProviderMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := url.Values{}
	query.Set("PageSize", strconv.Itoa(min(limit, 1000)))
	if !since.IsZero() {
		query.Set("DateSent>", since.UTC().Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json?%s", c.baseURL, c.accountSID, query.Encode())

	list, err := withRetry(ctx, "list", func() (*twilioMessageList, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("building list request: %w", err)
		}
		req.SetBasicAuth(c.accountSID, c.authToken)

		var page twilioMessageList
		if err := c.do(req, &page); err != nil {
			return nil, err
		}
		return &page, nil
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]ProviderMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		msgs = append(msgs, *toProviderMessage(m))
	}

	// The API pages newest-first; reconciliation wants oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (c *twilioClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr twilioError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("gateway error %d (code %d): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("gateway error %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}

func toProviderMessage(m twilioMessage) *ProviderMessage {
	direction := DirectionOutbound
	if strings.HasPrefix(m.Direction, "inbound") {
		direction = DirectionInbound
	}

	sentAt := parseGatewayTime(m.DateSent)
	if sentAt.IsZero() {
		sentAt = parseGatewayTime(m.DateCreated)
	}

	return &ProviderMessage{
		SID:       m.SID,
		From:      m.From,
		To:        m.To,
		Body:      m.Body,
		Status:    m.Status,
		Direction: direction,
		SentAt:    sentAt,
	}
}

func parseGatewayTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
