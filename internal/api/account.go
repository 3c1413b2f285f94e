package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AccountService covers email verification and password reset.
type AccountService struct {
	d Doer
}

// RequestEmailVerification sends a verification link to the current user's email.
func (s *AccountService) RequestEmailVerification(ctx context.Context) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPost, "/auth/request-verify-email", nil, nil)
}

func (s *AccountService) VerifyEmail(ctx context.Context, emailToken string) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPut, "/auth/verify-email", url.Values{"email_token": {emailToken}}, nil)
}

func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return nil, fmt.Errorf("encoding reset request: %w", err)
	}
	return send(ctx, s.d, http.MethodPost, "/auth/request-reset-password", nil, body)
}

func (s *AccountService) ResetPassword(ctx context.Context, passwordToken, newPassword string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"new_password": newPassword})
	if err != nil {
		return nil, fmt.Errorf("encoding password reset: %w", err)
	}
	return send(ctx, s.d, http.MethodPut, "/auth/reset-password", url.Values{"password_token": {passwordToken}}, body)
}
