package actions_local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

// Login exchanges a stored service-principal credential for a short-lived
// bearer token via the client-credentials grant. The resulting session is
// carried on the run context for later steps.
type Login struct {
	log      *zap.Logger
	tokenURL string
	hc       *http.Client
}

func NewLogin(log *zap.Logger, tokenURL string, timeout time.Duration) *Login {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Login{
		log:      log,
		tokenURL: trimSlash(tokenURL),
		hc:       &http.Client{Transport: tr, Timeout: timeout},
	}
}

func (a *Login) Name() string { return "azure/login" }

type spCredentials struct {
	ClientID       string `json:"clientId"`
	ClientSecret   string `json:"clientSecret"`
	TenantID       string `json:"tenantId"`
	SubscriptionID string `json:"subscriptionId"`
}

type tokenDTO struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *Login) Run(ctx context.Context, sc *domain.StepContext, params map[string]string) (domain.ActionOutcome, error) {
	raw := params["credentials"]
	if raw == "" {
		raw = params["creds"]
	}
	if raw == "" {
		return domain.ActionOutcome{}, errors.New("login: credentials parameter is required")
	}

	var cr spCredentials
	if err := json.Unmarshal([]byte(raw), &cr); err != nil {
		return domain.ActionOutcome{}, fmt.Errorf("login: credentials is not valid JSON: %w", err)
	}
	if cr.ClientID == "" || cr.ClientSecret == "" || cr.TenantID == "" {
		return domain.ActionOutcome{}, errors.New("login: credentials must carry clientId, clientSecret and tenantId")
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", a.tokenURL, cr.TenantID)
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {cr.ClientID},
		"client_secret": {cr.ClientSecret},
		"scope":         {"https://management.azure.com/.default"},
	}

	var tok tokenDTO

	op := func() error {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := a.hc.Do(req)
		if err != nil {
			return err
		}

		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if sec, _ := strconv.Atoi(ra); sec > 0 {
					select {
					case <-time.After(time.Duration(sec) * time.Second):
					case <-ctx.Done():
						return ctx.Err()
					}
					return fmt.Errorf("retry after due to 429")
				}
			}

			return fmt.Errorf("token endpoint 429")
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("token endpoint %s", resp.Status)
		}

		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("token endpoint %s", resp.Status))
		}

		if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
			return err
		}
		if tok.AccessToken == "" {
			return backoff.Permanent(errors.New("token response carries no access_token"))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 5 * time.Second

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return domain.ActionOutcome{}, fmt.Errorf("login: %w", err)
	}

	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}

	sess := &domain.Session{
		Token:          tok.AccessToken,
		TokenType:      tok.TokenType,
		TenantID:       cr.TenantID,
		SubscriptionID: cr.SubscriptionID,
		ExpiresAt:      time.Now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}

	a.log.Debug("session established",
		zap.String("run", sc.RunID),
		zap.String("tenant", cr.TenantID),
		zap.Time("expires", sess.ExpiresAt),
	)

	out := fmt.Sprintf("logged in to tenant %s (token expires in %ds)", cr.TenantID, tok.ExpiresIn)
	return domain.ActionOutcome{Output: out, Session: sess}, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
