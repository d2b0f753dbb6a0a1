package steam

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"

	"github.com/edgard/scposter/internal/steamid"
)

// refreshMargin renews access tokens this long before they expire.
const refreshMargin = time.Minute

// Session is an authenticated Steam account.
type Session struct {
	client *Client
	logger *slog.Logger
	store  GuardStore

	mu           sync.RWMutex
	account      string
	steamID      steamid.ID
	clientID     uint64
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// SessionSnapshot is a read-only copy of session state.
type SessionSnapshot struct {
	SteamID           steamid.ID
	ClientID          uint64
	AccountName       string
	AccessTokenExpiry time.Time
	HasRefreshToken   bool
}

// GameInfo is an owned game.
type GameInfo struct {
	AppID           uint32 `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever uint32 `json:"playtime_forever"`
}

func (g GameInfo) String() string {
	return fmt.Sprintf("%s (AppID: %d) - %d minutes played", g.Name, g.AppID, g.PlaytimeForever)
}

func newSession(client *Client, account string, o logonOptions) *Session {
	return &Session{
		client:  client,
		logger:  o.logger.With("component", "steam_session"),
		store:   o.store,
		account: account,
	}
}

// NewSessionFromTokens builds a session from tokens obtained elsewhere.
func NewSessionFromTokens(client *Client, account, accessToken, refreshToken string) (*Session, error) {
	s := newSession(client, account, logonOptions{logger: client.logger})
	s.refreshToken = refreshToken
	s.setAccessToken(accessToken)
	if err := validateSession(s, false); err != nil {
		return nil, newLogonError(StageInvariant, err)
	}
	return s, nil
}

// setAccessToken stores token and reads its subject and expiry. Callers hold mu or own s exclusively.
func (s *Session) setAccessToken(token string) {
	s.accessToken = token

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		s.logger.Debug("Access token is not a JWT, expiry unknown", "error", err)
		s.expiresAt = time.Time{}
		return
	}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	if s.steamID == 0 && claims.Subject != "" {
		if n, err := strconv.ParseUint(claims.Subject, 10, 64); err == nil {
			s.steamID = steamid.ID(n)
		}
	}
}

// SteamID returns the logged-in account id.
func (s *Session) SteamID() steamid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steamID
}

// Snapshot returns the current session state without exposing tokens.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{
		SteamID:           s.steamID,
		ClientID:          s.clientID,
		AccountName:       s.account,
		AccessTokenExpiry: s.expiresAt,
		HasRefreshToken:   s.refreshToken != "",
	}
}

func (s *Session) needsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.refreshToken == "" {
		return false
	}
	if s.accessToken == "" {
		return true
	}
	return !s.expiresAt.IsZero() && time.Until(s.expiresAt) < refreshMargin
}

// Refresh obtains a new access token with the refresh token.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	refresh, id := s.refreshToken, s.steamID
	s.mu.RUnlock()

	if refresh == "" {
		return ErrNoRefreshToken
	}

	params := url.Values{"refresh_token": {refresh}}
	if id != 0 {
		params.Set("steamid", id.String())
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := s.client.Call(ctx, Post(authService, "GenerateAccessTokenForApp", params), &resp); err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("refresh access token: %w: empty access token", ErrMalformedResponse)
	}

	s.mu.Lock()
	s.setAccessToken(resp.AccessToken)
	rotated := resp.RefreshToken != "" && resp.RefreshToken != s.refreshToken
	if rotated {
		s.refreshToken = resp.RefreshToken
	}
	account, steamID, newRefresh, expiry := s.account, s.steamID, s.refreshToken, s.expiresAt
	s.mu.Unlock()

	if rotated && s.store != nil {
		if err := s.store.SaveRefreshToken(ctx, account, steamID, newRefresh); err != nil {
			s.logger.WarnContext(ctx, "Failed to persist rotated refresh token", "error", err)
		}
	}

	s.logger.DebugContext(ctx, "Access token refreshed", "expires_at", expiry, "rotated", rotated)
	return nil
}

// Call performs req as the session's account. Expiring tokens are renewed
// first, and a rejected token is renewed and the call repeated once.
func (s *Session) Call(ctx context.Context, req Request, out any) error {
	if s.needsRefresh() {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
	}

	err := s.callOnce(ctx, req, out)
	if err == nil || Classify(err).Disposition != Reauthenticate {
		return err
	}

	s.mu.RLock()
	canRefresh := s.refreshToken != ""
	s.mu.RUnlock()
	if !canRefresh {
		return err
	}

	s.logger.InfoContext(ctx, "Access token rejected, refreshing", "method", req.Name())
	if rerr := s.Refresh(ctx); rerr != nil {
		return fmt.Errorf("%w (refresh failed: %v)", err, rerr)
	}
	return s.callOnce(ctx, req, out)
}

func (s *Session) callOnce(ctx context.Context, req Request, out any) error {
	s.mu.RLock()
	token := s.accessToken
	s.mu.RUnlock()
	if token == "" {
		return ErrNoSession
	}
	return s.client.CallWithToken(ctx, req, token, out)
}

// Ping verifies the Web API is reachable.
func (s *Session) Ping(ctx context.Context) error {
	var info struct {
		ServerTime int64 `json:"servertime"`
	}
	req := Get("ISteamWebAPIUtil", "GetServerInfo", nil)
	req.Raw = true
	if err := s.client.Call(ctx, req, &info); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if info.ServerTime == 0 {
		return fmt.Errorf("ping: %w: missing server time", ErrMalformedResponse)
	}
	s.logger.InfoContext(ctx, "connection round-trip succeeded", "server_time", time.Unix(info.ServerTime, 0).UTC())
	return nil
}

// OwnedGames lists the games owned by the session's account.
func (s *Session) OwnedGames(ctx context.Context) ([]GameInfo, error) {
	params := url.Values{
		"steamid":                   {s.SteamID().String()},
		"include_appinfo":           {"true"},
		"include_played_free_games": {"true"},
	}

	var resp struct {
		GameCount int        `json:"game_count"`
		Games     []GameInfo `json:"games"`
	}
	if err := s.Call(ctx, Get("IPlayerService", "GetOwnedGames", params), &resp); err != nil {
		return nil, fmt.Errorf("get owned games: %w", err)
	}

	return lo.Filter(resp.Games, func(g GameInfo, _ int) bool { return g.AppID != 0 }), nil
}
