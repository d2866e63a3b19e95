package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RemoteVerifier asks the identity service who owns a token via GET {baseURL}/user.
// Concurrent checks of the same token share one upstream call.
type RemoteVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
	sfg     singleflight.Group
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func NewRemoteVerifier(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "identity")),
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	// key on a digest so the raw credential never sits in the group's map
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])

	res, err, _ := v.sfg.Do(key, func() (interface{}, error) {
		return v.fetch(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	id := *res.(*Identity)
	return &id, nil
}

func (v *RemoteVerifier) fetch(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("identity service request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		v.logger.Warn("identity service returned unexpected status", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrIdentityUnavailable, resp.StatusCode)
	}

	var user remoteUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrIdentityUnavailable, err)
	}
	if user.ID == "" {
		return nil, ErrUnauthenticated
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}
