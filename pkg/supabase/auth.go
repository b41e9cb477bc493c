package supabase

import (
	"context"
	"net/http"
	"strings"

	"momentsstudio/pkg/domain"
)

// GetUser resolves a bearer token to the signed-in user. Any failure,
// including a network error, is reported as unauthorized.
func (c *Client) GetUser(ctx context.Context, accessToken string) (domain.User, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return domain.User{}, domain.NewError(domain.ErrUnauthorized, "Unauthorized", nil)
	}
	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	err := c.doJSON(ctx, request{
		method:      http.MethodGet,
		path:        "/auth/v1/user",
		accessToken: accessToken,
	}, &payload)
	if err != nil {
		return domain.User{}, domain.NewError(domain.ErrUnauthorized, "Unauthorized", err)
	}
	if payload.ID == "" {
		return domain.User{}, domain.NewError(domain.ErrUnauthorized, "Unauthorized", nil)
	}
	return domain.User{ID: payload.ID, Email: payload.Email, Role: payload.Role}, nil
}
