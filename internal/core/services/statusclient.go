package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/banwatch/backend/internal/core/ports"
	"github.com/banwatch/backend/internal/domain"
	"github.com/banwatch/backend/internal/infrastructure/logger"
)

// ProfileStatus is the decoded payload of the external status service.
type ProfileStatus struct {
	Visibility      string `json:"visibility"`
	VACBanned       bool   `json:"vac_banned"`
	GameBans        int    `json:"game_bans"`
	CommunityBanned bool   `json:"community_banned"`
}

// ClassifyProfile maps a decoded profile payload to a verdict. Pure; the
// worker retry machinery sits in front of it.
func ClassifyProfile(p ProfileStatus) (domain.Verdict, string) {
	if p.Visibility == "private" {
		return domain.VerdictPrivate, "profile is private"
	}
	switch {
	case p.VACBanned && p.GameBans > 0:
		return domain.VerdictBanned, fmt.Sprintf("VAC banned, %d game ban(s)", p.GameBans)
	case p.VACBanned:
		return domain.VerdictBanned, "VAC banned"
	case p.GameBans > 0:
		return domain.VerdictBanned, fmt.Sprintf("%d game ban(s)", p.GameBans)
	case p.CommunityBanned:
		return domain.VerdictBanned, "community banned"
	}
	return domain.VerdictClean, "no bans on record"
}

// transientStatusError marks an upstream response worth retrying.
type transientStatusError struct {
	code int
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("status: upstream returned %d", e.code)
}

// IsTransient reports whether err is worth another attempt: timeouts,
// connection failures, upstream 5xx, and rate limiting.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var tse *transientStatusError
	if errors.As(err, &tse) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

type statusClient struct {
	endpoint string
	log      *logger.Logger
}

// NewStatusClient builds the HTTP implementation of the classification call
// against the configured status endpoint.
func NewStatusClient(endpoint string, log *logger.Logger) ports.StatusClient {
	if log == nil {
		log = logger.Nop()
	}
	return &statusClient{endpoint: endpoint, log: log}
}

func (c *statusClient) Check(ctx context.Context, steamID string, httpClient *http.Client) (domain.Verdict, string, error) {
	reqURL := fmt.Sprintf("%s?steamid=%s", c.endpoint, url.QueryEscape(steamID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.VerdictError, "", fmt.Errorf("status: build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return domain.VerdictError, "", fmt.Errorf("status: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.VerdictError, "", ErrRateLimited
	case resp.StatusCode >= 500:
		return domain.VerdictError, "", &transientStatusError{code: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return domain.VerdictError, "", fmt.Errorf("status: upstream returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.VerdictError, "", fmt.Errorf("status: read response: %w", err)
	}

	var profile ProfileStatus
	if err := json.Unmarshal(body, &profile); err != nil {
		return domain.VerdictError, "", fmt.Errorf("status: decode response: %w", err)
	}

	verdict, details := ClassifyProfile(profile)
	return verdict, details, nil
}
