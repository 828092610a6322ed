package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/kennethcanega/userdesk/internal/domain"
)

type realmRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type userRepresentation struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// CreateUser provisions the remote user record, resolves its external id
// and assigns the managed realm role. A 409 from the provider (left over
// from a previous partially-failed attempt) is recovered by resolving the
// existing record and continuing. Role-assignment failure does not fail
// the operation; it is returned in warnings so callers can report a
// partially provisioned user instead of losing one that can never be fixed.
func (c *Client) CreateUser(ctx context.Context, cmd UserCommand) (string, []string, error) {
	adminToken, err := c.ServiceAccountToken(ctx)
	if err != nil {
		return "", nil, err
	}

	payload := map[string]any{
		"username":  cmd.Username,
		"email":     cmd.Email,
		"firstName": cmd.Name,
		"enabled":   cmd.Active,
		"credentials": []map[string]any{{
			"type":      "password",
			"value":     cmd.Password,
			"temporary": false,
		}},
	}

	resp, err := c.adminRequest(ctx, adminToken).
		SetBody(payload).
		Post(c.adminUsersEndpoint())
	if err != nil {
		return "", nil, fmt.Errorf("keycloak create user: %w", err)
	}

	var userID string
	switch {
	case resp.StatusCode() == http.StatusCreated || resp.StatusCode() == http.StatusNoContent:
		userID = idFromLocation(resp.Header().Get("Location"))
	case resp.StatusCode() == http.StatusConflict:
		// Username already exists upstream; adopt the record and continue.
		c.log.Info().Str("username", cmd.Username).Msg("keycloak user already exists, recovering")
		userID, err = c.findUserIDByUsername(ctx, adminToken, cmd.Username)
		if err != nil {
			return "", nil, err
		}
		if err := c.normalizeRecovered(ctx, adminToken, userID, cmd); err != nil {
			return "", nil, err
		}
	default:
		c.logUpstream("create user", resp)
		return "", nil, fmt.Errorf("keycloak create user returned %d", resp.StatusCode())
	}

	// Some provider versions respond without a Location header.
	if userID == "" {
		userID, err = c.findUserIDByUsername(ctx, adminToken, cmd.Username)
		if err != nil {
			return "", nil, err
		}
	}

	var warnings []string
	if err := c.assignRealmRole(ctx, adminToken, userID, cmd.Role); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("role assignment failed after create")
		warnings = append(warnings, fmt.Sprintf("role assignment failed: %v", err))
	}
	return userID, warnings, nil
}

// UpdateUser pushes profile and enabled-flag changes, then the password
// (only when one was supplied), then re-assigns the role. The profile step
// is fatal; password and role steps are best-effort and reported as
// warnings.
func (c *Client) UpdateUser(ctx context.Context, externalID string, cmd UserCommand) ([]string, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, fmt.Errorf("keycloak update: empty external id")
	}
	adminToken, err := c.ServiceAccountToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"username":  cmd.Username,
		"email":     cmd.Email,
		"firstName": cmd.Name,
		"enabled":   cmd.Active,
	}
	resp, err := c.adminRequest(ctx, adminToken).
		SetBody(payload).
		Put(c.adminUsersEndpoint() + "/" + externalID)
	if err != nil {
		return nil, fmt.Errorf("keycloak update user: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("update user", resp)
		return nil, fmt.Errorf("keycloak update user returned %d", resp.StatusCode())
	}

	var warnings []string
	if cmd.Password != "" {
		if err := c.setPassword(ctx, adminToken, externalID, cmd.Password); err != nil {
			c.log.Warn().Err(err).Str("user_id", externalID).Msg("password reset failed after update")
			warnings = append(warnings, fmt.Sprintf("password reset failed: %v", err))
		}
	}
	if err := c.assignRealmRole(ctx, adminToken, externalID, cmd.Role); err != nil {
		c.log.Warn().Err(err).Str("user_id", externalID).Msg("role assignment failed after update")
		warnings = append(warnings, fmt.Sprintf("role assignment failed: %v", err))
	}
	return warnings, nil
}

// DeleteUser removes the remote record. Success is purely the status check.
func (c *Client) DeleteUser(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("keycloak delete: empty external id")
	}
	adminToken, err := c.ServiceAccountToken(ctx)
	if err != nil {
		return err
	}

	resp, err := c.adminRequest(ctx, adminToken).
		Delete(c.adminUsersEndpoint() + "/" + externalID)
	if err != nil {
		return fmt.Errorf("keycloak delete user: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("delete user", resp)
		return fmt.Errorf("keycloak delete user returned %d", resp.StatusCode())
	}
	return nil
}

// normalizeRecovered clears leftover required-action flags and marks the
// email verified on a record adopted via conflict recovery, then applies
// the requested password.
func (c *Client) normalizeRecovered(ctx context.Context, adminToken, userID string, cmd UserCommand) error {
	payload := map[string]any{
		"enabled":         cmd.Active,
		"emailVerified":   true,
		"requiredActions": []string{},
	}
	resp, err := c.adminRequest(ctx, adminToken).
		SetBody(payload).
		Put(c.adminUsersEndpoint() + "/" + userID)
	if err != nil {
		return fmt.Errorf("keycloak normalize user: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("normalize user", resp)
		return fmt.Errorf("keycloak normalize user returned %d", resp.StatusCode())
	}
	if cmd.Password != "" {
		return c.setPassword(ctx, adminToken, userID, cmd.Password)
	}
	return nil
}

func (c *Client) setPassword(ctx context.Context, adminToken, userID, plainPassword string) error {
	payload := map[string]any{
		"type":      "password",
		"value":     plainPassword,
		"temporary": false,
	}
	resp, err := c.adminRequest(ctx, adminToken).
		SetBody(payload).
		Put(c.adminUsersEndpoint() + "/" + userID + "/reset-password")
	if err != nil {
		return fmt.Errorf("keycloak reset password: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("reset password", resp)
		return fmt.Errorf("keycloak reset password returned %d", resp.StatusCode())
	}
	return nil
}

// assignRealmRole guarantees the user holds exactly one of the two managed
// realm roles. The provider models role grants as a set, so any managed
// role currently held is removed before the target one is added back.
// An empty or unrecognized role name maps to "user".
func (c *Client) assignRealmRole(ctx context.Context, adminToken, userID, roleName string) error {
	if !domain.ValidRole(roleName) {
		roleName = string(domain.RoleUser)
	}

	adminRole, err := c.getRole(ctx, adminToken, string(domain.RoleAdmin))
	if err != nil {
		return err
	}
	userRole, err := c.getRole(ctx, adminToken, string(domain.RoleUser))
	if err != nil {
		return err
	}

	current, err := c.userRealmRoles(ctx, adminToken, userID)
	if err != nil {
		return err
	}

	var toRemove []realmRole
	for _, role := range current {
		switch role.Name {
		case string(domain.RoleAdmin):
			toRemove = append(toRemove, *adminRole)
		case string(domain.RoleUser):
			toRemove = append(toRemove, *userRole)
		}
	}
	if len(toRemove) > 0 {
		resp, err := c.adminRequest(ctx, adminToken).
			SetBody(toRemove).
			Delete(c.adminUsersEndpoint() + "/" + userID + "/role-mappings/realm")
		if err != nil {
			return fmt.Errorf("keycloak remove roles: %w", err)
		}
		if resp.StatusCode() >= 300 {
			c.logUpstream("remove roles", resp)
			return fmt.Errorf("keycloak remove roles returned %d", resp.StatusCode())
		}
	}

	target := userRole
	if roleName == string(domain.RoleAdmin) {
		target = adminRole
	}
	resp, err := c.adminRequest(ctx, adminToken).
		SetBody([]realmRole{*target}).
		Post(c.adminUsersEndpoint() + "/" + userID + "/role-mappings/realm")
	if err != nil {
		return fmt.Errorf("keycloak add role: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("add role", resp)
		return fmt.Errorf("keycloak add role returned %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) getRole(ctx context.Context, adminToken, name string) (*realmRole, error) {
	var role realmRole
	resp, err := c.adminRequest(ctx, adminToken).
		SetResult(&role).
		Get(c.adminRolesEndpoint() + "/" + name)
	if err != nil {
		return nil, fmt.Errorf("keycloak get role: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("get role", resp)
		return nil, fmt.Errorf("keycloak get role %q returned %d", name, resp.StatusCode())
	}
	return &role, nil
}

func (c *Client) userRealmRoles(ctx context.Context, adminToken, userID string) ([]realmRole, error) {
	var roles []realmRole
	resp, err := c.adminRequest(ctx, adminToken).
		SetResult(&roles).
		Get(c.adminUsersEndpoint() + "/" + userID + "/role-mappings/realm")
	if err != nil {
		return nil, fmt.Errorf("keycloak user roles: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("user roles", resp)
		return nil, fmt.Errorf("keycloak user roles returned %d", resp.StatusCode())
	}
	return roles, nil
}

// findUserIDByUsername resolves a remote id with an exact-username query,
// the fallback for providers that create without a Location header.
func (c *Client) findUserIDByUsername(ctx context.Context, adminToken, username string) (string, error) {
	var users []userRepresentation
	resp, err := c.adminRequest(ctx, adminToken).
		SetQueryParams(map[string]string{"username": username, "exact": "true"}).
		SetResult(&users).
		Get(c.adminUsersEndpoint())
	if err != nil {
		return "", fmt.Errorf("keycloak find user: %w", err)
	}
	if resp.StatusCode() >= 300 {
		c.logUpstream("find user", resp)
		return "", fmt.Errorf("keycloak find user returned %d", resp.StatusCode())
	}
	if len(users) == 0 || users[0].ID == "" {
		return "", fmt.Errorf("keycloak user %q not found", username)
	}
	return users[0].ID, nil
}

func (c *Client) adminRequest(ctx context.Context, adminToken string) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(adminToken).
		SetHeader("Content-Type", "application/json")
}

func idFromLocation(location string) string {
	if location == "" {
		return ""
	}
	return location[strings.LastIndex(location, "/")+1:]
}
