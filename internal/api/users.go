package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// UserService manages the current user's account and avatar.
type UserService struct {
	d        Doer
	uploader *http.Client
}

// Me returns the current user.
func (s *UserService) Me(ctx context.Context) (json.RawMessage, error) {
	return get(ctx, s.d, "/users/me", nil)
}

func (s *UserService) Update(ctx context.Context, update json.RawMessage) (json.RawMessage, error) {
	return send(ctx, s.d, http.MethodPut, "/users/update", nil, update)
}

// AvatarUploadURLs asks the API for a pre-signed upload URL and the resulting public URL.
func (s *UserService) AvatarUploadURLs(ctx context.Context) (uploadURL, publicURL string, err error) {
	raw, err := send(ctx, s.d, http.MethodPut, "/users/upload-avatar", nil, nil)
	if err != nil {
		return "", "", err
	}
	res := gjson.ParseBytes(raw)
	uploadURL, publicURL = res.Get("upload_url").String(), res.Get("public_url").String()
	if uploadURL == "" {
		return "", "", fmt.Errorf("upload-avatar response has no upload_url")
	}
	return uploadURL, publicURL, nil
}

// UploadAvatar stores the image read from r and returns its public URL.
// The file goes straight to the pre-signed URL, without the API's bearer token.
func (s *UserService) UploadAvatar(ctx context.Context, r io.Reader, contentType string) (string, error) {
	uploadURL, publicURL, err := s.AvatarUploadURLs(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, r)
	if err != nil {
		return "", fmt.Errorf("building avatar upload: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.uploader.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading avatar: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("uploading avatar: unexpected status %d", resp.StatusCode)
	}
	return publicURL, nil
}

func (s *UserService) DeleteAvatar(ctx context.Context) error {
	_, err := send(ctx, s.d, http.MethodPut, "/users/delete-avatar", nil, nil)
	return err
}

// Delete removes the current user's account.
func (s *UserService) Delete(ctx context.Context) error {
	return del(ctx, s.d, "/users/delete")
}
