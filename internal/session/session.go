// Package session provides authenticated fetch against the portal. A
// Session owns an HTTP client with a persistent cookie jar and returns
// parsed documents; a shared Authenticator coordinates logins across every
// session in the process.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/metrics"
)

// Config controls a Session.
type Config struct {
	// BaseURL is the portal root, e.g. "https://portal.example.edu".
	BaseURL string
	// LoginPath is the credential POST target relative to BaseURL.
	// Defaults to "/login".
	LoginPath string
	Username  string
	Password  string
	// CookieFile persists cookies between runs; empty disables
	// persistence. Two sessions may not share one file.
	CookieFile string
	UserAgent  string
	Timeout    time.Duration
}

// Session fetches pages with portal cookies attached. Safe for concurrent
// use: the client and jar are concurrency-safe and logins are serialized by
// the Authenticator.
type Session struct {
	cfg    Config
	base   *url.URL
	client *http.Client
	jar    *cookiejar.Jar
	auth   *Authenticator
	log    *zap.Logger
}

// New builds a Session, claims its cookie file and loads any persisted
// cookies from it.
func New(cfg Config, auth *Authenticator, log *zap.Logger) (*Session, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("session: base url is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("session: credentials are required")
	}
	if auth == nil {
		return nil, fmt.Errorf("session: authenticator is required")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	metrics.Init()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("session: parse base url: %w", err)
	}
	if err := auth.claimCookieFile(cfg.CookieFile); err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("session: build cookie jar: %w", err)
	}
	s := &Session{
		cfg:    cfg,
		base:   base,
		client: &http.Client{Jar: jar, Timeout: cfg.Timeout},
		jar:    jar,
		auth:   auth,
		log:    log,
	}
	if err := s.loadCookies(); err != nil {
		// A corrupt cookie file only costs one extra login.
		log.Warn("cookie file unreadable, starting unauthenticated",
			zap.String("path", cfg.CookieFile), zap.Error(err))
	}
	return s, nil
}

// Get fetches a page and returns the parsed document, authenticating first
// when the coordinator says the login is stale.
func (s *Session) Get(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := s.auth.Ensure(ctx, s.login); err != nil {
		return nil, err
	}
	return s.fetch(ctx, http.MethodGet, pageURL, nil)
}

// Post submits a form and returns the parsed response document.
func (s *Session) Post(ctx context.Context, pageURL string, form url.Values) (*goquery.Document, error) {
	if err := s.auth.Ensure(ctx, s.login); err != nil {
		return nil, err
	}
	return s.fetch(ctx, http.MethodPost, pageURL, form)
}

func (s *Session) fetch(ctx context.Context, method, pageURL string, form url.Values) (*goquery.Document, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, pageURL, body)
	if err != nil {
		return nil, fmt.Errorf("session: build request %s: %w", pageURL, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ObservePage(method, "error")
		return nil, fmt.Errorf("session: %s %s: %w", method, pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.ObservePage(method, "error")
		return nil, fmt.Errorf("session: %s %s: unexpected status %d", method, pageURL, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		metrics.ObservePage(method, "error")
		return nil, fmt.Errorf("session: parse %s: %w", pageURL, err)
	}
	metrics.ObservePage(method, "ok")
	return doc, nil
}

// login posts the credentials. It runs with the Authenticator's lock held.
func (s *Session) login(ctx context.Context) error {
	loginURL := s.base.JoinPath(s.cfg.LoginPath).String()
	form := url.Values{
		"identifier": {s.cfg.Username},
		"password":   {s.cfg.Password},
	}
	doc, err := s.fetch(ctx, http.MethodPost, loginURL, form)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	// The portal re-renders the login form on bad credentials.
	if doc.Find("input[type=password]").Length() > 0 {
		return ErrAuthenticationFailed
	}
	s.log.Info("authenticated against portal", zap.String("user", s.cfg.Username))
	if err := s.saveCookies(); err != nil {
		s.log.Warn("persist cookies failed", zap.Error(err))
	}
	return nil
}

// cookieRecord is the cookie file line format.
type cookieRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *Session) loadCookies() error {
	if s.cfg.CookieFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.cfg.CookieFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var records []cookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	cookies := make([]*http.Cookie, 0, len(records))
	for _, r := range records {
		cookies = append(cookies, &http.Cookie{Name: r.Name, Value: r.Value})
	}
	s.jar.SetCookies(s.base, cookies)
	return nil
}

func (s *Session) saveCookies() error {
	if s.cfg.CookieFile == "" {
		return nil
	}
	cookies := s.jar.Cookies(s.base)
	records := make([]cookieRecord, 0, len(cookies))
	for _, c := range cookies {
		records = append(records, cookieRecord{Name: c.Name, Value: c.Value})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.cfg.CookieFile, data, 0o600)
}
