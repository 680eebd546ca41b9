package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultLarkURL is the Lark open platform base URL. Feishu tenants use
// https://open.feishu.cn/open-apis.
const DefaultLarkURL = "https://open.larksuite.com/open-apis"

// Lark codes meaning the tenant token must be fetched again.
const (
	larkCodeTokenInvalid = 99991663
	larkCodeTokenExpired = 99991668
)

// tokenRefreshMargin renews the tenant token before Lark expires it.
const tokenRefreshMargin = 5 * time.Minute

// LarkConfig identifies the Lark app and the target group chat.
type LarkConfig struct {
	BaseURL   string
	AppID     string
	AppSecret string
	ChatID    string
}

// LarkSender posts text messages to a Lark group chat as a bot. It caches the
// tenant access token until shortly before it expires.
type LarkSender struct {
	cfg    LarkConfig
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewLarkSender creates a LarkSender.
func NewLarkSender(cfg LarkConfig) *LarkSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLarkURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LarkSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// larkResponse is the envelope every Lark API returns.
type larkResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// Send posts title and message as one text message.
func (l *LarkSender) Send(ctx context.Context, title, message string) error {
	token, err := l.tenantToken(ctx)
	if err != nil {
		return err
	}

	content, err := json.Marshal(map[string]string{"text": title + "\n" + message})
	if err != nil {
		return fmt.Errorf("lark: marshal content: %w", err)
	}
	body := map[string]string{
		"receive_id": l.cfg.ChatID,
		"msg_type":   "text",
		"content":    string(content),
	}

	var resp larkResponse
	if err := l.post(ctx, "/im/v1/messages?receive_id_type=chat_id", token, body, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		if resp.Code == larkCodeTokenInvalid || resp.Code == larkCodeTokenExpired {
			l.invalidate()
		}
		return fmt.Errorf("lark: send message: code %d: %s", resp.Code, resp.Msg)
	}
	return nil
}

// Name returns the sender identifier.
func (l *LarkSender) Name() string {
	return "lark"
}

func (l *LarkSender) tenantToken(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != "" && l.now().Before(l.expires) {
		return l.token, nil
	}

	var resp larkResponse
	body := map[string]string{"app_id": l.cfg.AppID, "app_secret": l.cfg.AppSecret}
	if err := l.post(ctx, "/auth/v3/tenant_access_token/internal", "", body, &resp); err != nil {
		return "", err
	}
	if resp.Code != 0 || resp.TenantAccessToken == "" {
		return "", fmt.Errorf("lark: tenant token: code %d: %s", resp.Code, resp.Msg)
	}

	ttl := time.Duration(resp.Expire)*time.Second - tokenRefreshMargin
	if ttl <= 0 {
		ttl = time.Minute
	}
	l.token = resp.TenantAccessToken
	l.expires = l.now().Add(ttl)
	return l.token, nil
}

func (l *LarkSender) invalidate() {
	l.mu.Lock()
	l.token = ""
	l.mu.Unlock()
}

func (l *LarkSender) post(ctx context.Context, path, token string, payload any, out *larkResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("lark: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("lark: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("lark: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > 1024 {
			respBody = respBody[:1024]
		}
		return fmt.Errorf("lark: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("lark: decode response: %w", err)
	}
	return nil
}
