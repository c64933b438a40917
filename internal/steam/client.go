// Package steam talks to the Steam Web API: auth ticket validation and
// persona name lookup.
package steam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/domain"
)

// Client is a throttled Steam Web API client.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	appID   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Steam client.
func NewClient(cfg *config.SteamConfig, logger *slog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		appID:   cfg.AppID,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("waiting for steam rate limit: %w", err)
	}

	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: steam %s: %v", domain.ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: reading steam response: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%w: steam %s responded with status %d", domain.ErrUpstream, path, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: steam %s returned invalid JSON", domain.ErrUpstream, path)
	}
	return gjson.ParseBytes(body), nil
}

// VerifyTicket reports whether ticket is a valid session ticket for steamID.
// A ticket issued to a different account is rejected.
func (c *Client) VerifyTicket(ctx context.Context, steamID, ticket string) (bool, error) {
	if ticket == "" {
		return false, nil
	}

	res, err := c.get(ctx, "/ISteamUserAuth/AuthenticateUserTicket/v1/", url.Values{
		"appid":  {c.appID},
		"ticket": {ticket},
	})
	if err != nil {
		return false, err
	}

	if params := res.Get("response.params"); params.Exists() {
		got := params.Get("steamid").String()
		if got != steamID {
			c.logger.Warn("steam ticket belongs to another account", "expected", steamID, "got", got)
			return false, nil
		}
		return true, nil
	}
	if e := res.Get("response.error"); e.Exists() {
		c.logger.Warn("steam ticket rejected", "steam_id", steamID, "error", e.Raw)
		return false, nil
	}
	return false, fmt.Errorf("%w: unexpected steam auth response", domain.ErrUpstream)
}

// PersonaName returns the player's current Steam display name, or "" when
// Steam does not know the account.
func (c *Client) PersonaName(ctx context.Context, steamID string) (string, error) {
	res, err := c.get(ctx, "/ISteamUser/GetPlayerSummaries/v2/", url.Values{
		"steamids": {steamID},
	})
	if err != nil {
		return "", err
	}
	return res.Get("response.players.0.personaname").String(), nil
}
