package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/SkyZonDev/scrappex/internal/race"
)

const (
	csrfCookieName = "ceo_csrf_cookie"
	loginTokenName = "loginToken"
	maxLoginBody   = 2 << 20
)

// Credentials identify the buyer account. BuyerCode is sent with every
// purchase; it defaults to Password when empty.
type Credentials struct {
	Login     string
	Password  string
	BuyerCode string
}

// Authenticator establishes sessions against the shop.
type Authenticator struct {
	pool      PoolConfig
	loginPath string
	logger    *slog.Logger
}

func NewAuthenticator(pool PoolConfig, loginPath string, logger *slog.Logger) *Authenticator {
	if strings.TrimSpace(loginPath) == "" {
		loginPath = "login"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{pool: pool, loginPath: loginPath, logger: logger}
}

// Acquire logs in and returns a session bound to a fresh connection pool.
// Every failure wraps race.ErrAuthentication.
func (a *Authenticator) Acquire(ctx context.Context, baseURL string, creds Credentials) (*race.Session, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", race.ErrAuthentication, baseURL)
	}
	if creds.Login == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: missing credentials", race.ErrAuthentication)
	}
	client, err := NewHTTPClient(a.pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", race.ErrAuthentication, err)
	}

	sess := &race.Session{Client: client, BaseURL: base, BuyerCode: creds.BuyerCode}
	if sess.BuyerCode == "" {
		sess.BuyerCode = creds.Password
	}
	loginURL := sess.URL(a.loginPath)

	// 1) Load the login page for the CSRF cookie and the form token.
	body, _, err := a.do(ctx, client, http.MethodGet, loginURL, nil)
	if err != nil {
		client.CloseIdleConnections()
		return nil, fmt.Errorf("%w: login page: %w", race.ErrAuthentication, err)
	}
	csrf := cookieValue(client, loginURL, csrfCookieName)
	if csrf == "" {
		client.CloseIdleConnections()
		return nil, fmt.Errorf("%w: no %s cookie", race.ErrAuthentication, csrfCookieName)
	}
	loginToken, err := hiddenInput(body, loginTokenName)
	if err != nil {
		client.CloseIdleConnections()
		return nil, fmt.Errorf("%w: %w", race.ErrAuthentication, err)
	}

	// 2) Submit credentials.
	form := url.Values{
		"ceo_csrf_token": {csrf},
		loginTokenName:   {loginToken},
		"login_string":   {creds.Login},
		"login_pass":     {creds.Password},
	}
	body, finalURL, err := a.do(ctx, client, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		client.CloseIdleConnections()
		return nil, fmt.Errorf("%w: login submit: %w", race.ErrAuthentication, err)
	}
	if strings.Contains(strings.ToLower(string(body)), "error") || onLoginPage(finalURL, a.loginPath) {
		client.CloseIdleConnections()
		return nil, fmt.Errorf("%w: credentials rejected", race.ErrAuthentication)
	}

	// The token may rotate after login; purchases use the current cookie.
	sess.Token = cookieValue(client, loginURL, csrfCookieName)
	if sess.Token == "" {
		sess.Token = csrf
	}
	a.logger.Info("session acquired", "base_url", base.String(), "login", creds.Login)
	return sess, nil
}

func (a *Authenticator) do(ctx context.Context, client *http.Client, method, target string, body io.Reader) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBody))
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("http %d", resp.StatusCode)
	}
	return b, resp.Request.URL.String(), nil
}

func cookieValue(client *http.Client, rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil || client.Jar == nil {
		return ""
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

var errNoToken = errors.New("login token not found")

// hiddenInput returns the value of the first <input> named name.
func hiddenInput(page []byte, name string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(string(page)))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return "", errNoToken
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			var n, v string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "name":
					n = attr.Val
				case "value":
					v = attr.Val
				}
			}
			if n == name && v != "" {
				return v, nil
			}
		}
	}
}

func onLoginPage(finalURL, loginPath string) bool {
	u, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "/"+strings.Trim(loginPath, "/"))
}
