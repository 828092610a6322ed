// Package keycloak talks to the external identity provider: credential
// exchanges on the realm's token endpoint and user/role management on the
// admin API, authenticated by a client-credentials service account.
package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kennethcanega/userdesk/internal/config"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
)

type Client struct {
	http *resty.Client
	cfg  config.Keycloak
	log  *logger.Logger
}

func New(cfg config.Keycloak, log *logger.Logger) *Client {
	cli := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15 * time.Second)
	return &Client{http: cli, cfg: cfg, log: log}
}

// TokenSet is the realm token endpoint's response to a successful grant.
type TokenSet struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

// Identity is the subset of userinfo claims the service resolves users by.
type Identity struct {
	Subject  string `json:"sub"`
	Username string `json:"preferred_username"`
}

// UserCommand carries the profile fields pushed to the provider on create
// and update. Password is only sent when non-empty.
type UserCommand struct {
	Username string
	Email    string
	Name     string
	Password string
	Role     string
	Active   bool
}

func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("/realms/%s/protocol/openid-connect/token", c.cfg.Realm)
}

func (c *Client) logoutEndpoint() string {
	return fmt.Sprintf("/realms/%s/protocol/openid-connect/logout", c.cfg.Realm)
}

func (c *Client) userinfoEndpoint() string {
	return fmt.Sprintf("/realms/%s/protocol/openid-connect/userinfo", c.cfg.Realm)
}

func (c *Client) adminUsersEndpoint() string {
	return fmt.Sprintf("/admin/realms/%s/users", c.cfg.Realm)
}

func (c *Client) adminRolesEndpoint() string {
	return fmt.Sprintf("/admin/realms/%s/roles", c.cfg.Realm)
}

// ExchangePassword runs the resource-owner-password grant for an end user.
func (c *Client) ExchangePassword(ctx context.Context, username, plainPassword string) (*TokenSet, error) {
	return c.exchange(ctx, map[string]string{
		"grant_type":    "password",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"username":      username,
		"password":      plainPassword,
	})
}

// ExchangeRefresh trades a provider refresh token for a fresh token set.
func (c *Client) ExchangeRefresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return c.exchange(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"refresh_token": refreshToken,
	})
}

func (c *Client) exchange(ctx context.Context, form map[string]string) (*TokenSet, error) {
	var tokens TokenSet
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&tokens).
		Post(c.tokenEndpoint())
	if err != nil {
		return nil, fmt.Errorf("keycloak token endpoint: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		c.logUpstream("token exchange", resp)
		return nil, fmt.Errorf("keycloak token endpoint returned %d", resp.StatusCode())
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("keycloak token endpoint returned no access token")
	}
	return &tokens, nil
}

// Logout asks the provider to invalidate a refresh token. Best effort from
// the caller's point of view.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"refresh_token": refreshToken,
		}).
		Post(c.logoutEndpoint())
	if err != nil {
		return fmt.Errorf("keycloak logout: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("logout", resp)
		return fmt.Errorf("keycloak logout returned %d", resp.StatusCode())
	}
	return nil
}

// UserInfo validates an access token against the provider and returns the
// identity claims. A non-200 means the token is not (or no longer) valid.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*Identity, error) {
	var id Identity
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&id).
		Get(c.userinfoEndpoint())
	if err != nil {
		return nil, fmt.Errorf("keycloak userinfo: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("keycloak userinfo returned %d", resp.StatusCode())
	}
	return &id, nil
}

// ServiceAccountToken performs the client-credentials exchange and returns
// the admin access token used by the management API calls.
func (c *Client) ServiceAccountToken(ctx context.Context) (string, error) {
	tokens, err := c.exchange(ctx, map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	})
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

func (c *Client) logUpstream(op string, resp *resty.Response) {
	c.log.Warn().
		Str("op", op).
		Int("status", resp.StatusCode()).
		Str("body", string(resp.Body())).
		Msg("keycloak request failed")
}
