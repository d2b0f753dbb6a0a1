package steam

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"strconv"
	"time"

	"github.com/edgard/scposter/internal/steamid"
)

const authService = "IAuthenticationService"

const (
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 2 * time.Minute
	defaultDeviceName   = "scposter"

	platformWebBrowser    = "2"
	persistencePersistent = "1"
)

type logonOptions struct {
	handler      ConfirmationHandler
	store        GuardStore
	deviceName   string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *slog.Logger
}

// LogOnOption configures LogOn.
type LogOnOption func(*logonOptions)

// WithConfirmationHandler sets the Steam Guard handler chain.
func WithConfirmationHandler(h ConfirmationHandler) LogOnOption {
	return func(o *logonOptions) { o.handler = h }
}

// WithGuardStore enables refresh token persistence.
func WithGuardStore(s GuardStore) LogOnOption {
	return func(o *logonOptions) { o.store = s }
}

// WithDeviceName sets the device name shown in the account's authorized devices.
func WithDeviceName(name string) LogOnOption {
	return func(o *logonOptions) { o.deviceName = name }
}

// WithPollInterval overrides the interval Steam suggests for status polling.
func WithPollInterval(d time.Duration) LogOnOption {
	return func(o *logonOptions) { o.pollInterval = d }
}

// WithPollTimeout bounds how long LogOn waits for guard approval.
func WithPollTimeout(d time.Duration) LogOnOption {
	return func(o *logonOptions) { o.pollTimeout = d }
}

// WithLogonLogger sets the logger used during logon and by the session.
func WithLogonLogger(l *slog.Logger) LogOnOption {
	return func(o *logonOptions) { o.logger = l }
}

type rsaKeyResponse struct {
	Modulus   string `json:"publickey_mod"`
	Exponent  string `json:"publickey_exp"`
	Timestamp Uint64 `json:"timestamp"`
}

type beginSessionResponse struct {
	ClientID      Uint64         `json:"client_id"`
	RequestID     string         `json:"request_id"`
	Interval      float64        `json:"interval"`
	Confirmations []Confirmation `json:"allowed_confirmations"`
	SteamID       Uint64         `json:"steamid"`
	ExtendedError string         `json:"extended_error_message"`
}

type pollResponse struct {
	NewClientID  Uint64 `json:"new_client_id"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	AccountName  string `json:"account_name"`
}

// LogOn authenticates account and returns a ready session. A refresh token
// found in the guard store is tried first; the credential flow runs when there
// is none or Steam rejects it.
func LogOn(ctx context.Context, client *Client, account, password string, opts ...LogOnOption) (*Session, error) {
	o := logonOptions{
		deviceName:  defaultDeviceName,
		pollTimeout: defaultPollTimeout,
		logger:      client.logger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.handler == nil {
		o.handler = DefaultConfirmationHandler(o.logger)
	}

	if account == "" || password == "" {
		return nil, &LogonError{
			Stage:     StageConnection,
			Err:       errors.New("account and password are required"),
			Inventory: Inventory{DomainAuthentication, Fatal, "invalid credentials"},
		}
	}

	if s := resumeSession(ctx, client, account, o); s != nil {
		return s, nil
	}

	key, err := fetchPasswordKey(ctx, client, account)
	if err != nil {
		return nil, newLogonError(StageDiscovery, err)
	}

	encrypted, err := encryptPassword(password, key)
	if err != nil {
		return nil, newLogonError(StageConnection, err)
	}

	begin, err := beginSession(ctx, client, account, encrypted, uint64(key.Timestamp), o.deviceName)
	if err != nil {
		return nil, newLogonError(StageConnection, err)
	}

	steamID := steamid.ID(begin.SteamID)
	if err := confirmSession(ctx, client, begin, o); err != nil {
		return nil, newLogonError(StageConnection, err)
	}

	tokens, clientID, err := pollSession(ctx, client, begin, o)
	if err != nil {
		return nil, newLogonError(StageConnection, err)
	}

	s := newSession(client, account, o)
	s.clientID = clientID
	s.steamID = steamID
	if tokens.AccountName != "" {
		s.account = tokens.AccountName
	}
	s.refreshToken = tokens.RefreshToken
	s.setAccessToken(tokens.AccessToken)

	if err := validateSession(s, true); err != nil {
		return nil, newLogonError(StageInvariant, err)
	}

	if o.store != nil {
		if err := o.store.SaveRefreshToken(ctx, account, s.steamID, s.refreshToken); err != nil {
			o.logger.WarnContext(ctx, "Failed to persist refresh token", "error", err)
		}
	}

	o.logger.InfoContext(ctx, "logon successful", "steam_id", s.steamID.Steam3())
	return s, nil
}

func resumeSession(ctx context.Context, client *Client, account string, o logonOptions) *Session {
	if o.store == nil {
		return nil
	}

	token, id, err := o.store.RefreshToken(ctx, account)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to load stored refresh token", "error", err)
		return nil
	}
	if token == "" {
		return nil
	}

	s := newSession(client, account, o)
	s.steamID = id
	s.refreshToken = token
	if err := s.Refresh(ctx); err != nil {
		o.logger.WarnContext(ctx, "Stored refresh token rejected, falling back to credentials",
			"error", err,
			"disposition", Classify(err).Disposition)
		return nil
	}
	if err := validateSession(s, false); err != nil {
		o.logger.WarnContext(ctx, "Resumed session is invalid", "error", err)
		return nil
	}

	o.logger.InfoContext(ctx, "logon successful", "steam_id", s.steamID.Steam3(), "resumed", true)
	return s
}

func fetchPasswordKey(ctx context.Context, client *Client, account string) (rsaKeyResponse, error) {
	var key rsaKeyResponse
	params := url.Values{"account_name": {account}}
	if err := client.Call(ctx, Get(authService, "GetPasswordRSAPublicKey", params), &key); err != nil {
		return key, fmt.Errorf("fetch password key: %w", err)
	}
	if key.Modulus == "" || key.Exponent == "" {
		return key, fmt.Errorf("fetch password key: %w: empty key", ErrMalformedResponse)
	}
	return key, nil
}

func encryptPassword(password string, key rsaKeyResponse) (string, error) {
	mod, ok := new(big.Int).SetString(key.Modulus, 16)
	if !ok {
		return "", fmt.Errorf("%w: invalid key modulus", ErrMalformedResponse)
	}
	exp, err := strconv.ParseInt(key.Exponent, 16, 32)
	if err != nil {
		return "", fmt.Errorf("%w: invalid key exponent: %w", ErrMalformedResponse, err)
	}

	pub := &rsa.PublicKey{N: mod, E: int(exp)}
	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(password))
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	return base64.StdEncoding.EncodeToString(cipher), nil
}

func beginSession(ctx context.Context, client *Client, account, encrypted string, timestamp uint64, device string) (beginSessionResponse, error) {
	params := url.Values{
		"account_name":         {account},
		"encrypted_password":   {encrypted},
		"encryption_timestamp": {strconv.FormatUint(timestamp, 10)},
		"device_friendly_name": {device},
		"platform_type":        {platformWebBrowser},
		"persistence":          {persistencePersistent},
		"remember_login":       {"true"},
		"website_id":           {"Community"},
	}

	var resp beginSessionResponse
	if err := client.Call(ctx, Post(authService, "BeginAuthSessionViaCredentials", params), &resp); err != nil {
		return resp, fmt.Errorf("begin auth session: %w", err)
	}
	if resp.ClientID == 0 || resp.RequestID == "" {
		msg := "missing client or request id"
		if resp.ExtendedError != "" {
			msg = resp.ExtendedError
		}
		return resp, fmt.Errorf("begin auth session: %w: %s", ErrMalformedResponse, msg)
	}
	return resp, nil
}

func needsConfirmation(confirmations []Confirmation) bool {
	if len(confirmations) == 0 {
		return false
	}
	_, none := findConfirmation(confirmations, GuardNone)
	return !none
}

func confirmSession(ctx context.Context, client *Client, begin beginSessionResponse, o logonOptions) error {
	if !needsConfirmation(begin.Confirmations) {
		return nil
	}

	submit := func(ctx context.Context, code string, kind GuardType) error {
		params := url.Values{
			"client_id": {strconv.FormatUint(uint64(begin.ClientID), 10)},
			"steamid":   {strconv.FormatUint(uint64(begin.SteamID), 10)},
			"code":      {code},
			"code_type": {strconv.Itoa(int(kind))},
		}
		if err := client.Call(ctx, Post(authService, "UpdateAuthSessionWithSteamGuardCode", params), nil); err != nil {
			return fmt.Errorf("submit guard code: %w", err)
		}
		return nil
	}

	handled, err := o.handler.Handle(ctx, begin.Confirmations, submit)
	if err != nil {
		return err
	}
	if !handled {
		kinds := make([]string, 0, len(begin.Confirmations))
		for _, c := range begin.Confirmations {
			kinds = append(kinds, c.Type.String())
		}
		return fmt.Errorf("%w: no handler for %v", ErrGuardRequired, kinds)
	}
	return nil
}

func pollSession(ctx context.Context, client *Client, begin beginSessionResponse, o logonOptions) (pollResponse, uint64, error) {
	interval := o.pollInterval
	if interval <= 0 {
		interval = time.Duration(begin.Interval * float64(time.Second))
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithTimeout(ctx, o.pollTimeout)
	defer cancel()

	clientID := uint64(begin.ClientID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		params := url.Values{
			"client_id":  {strconv.FormatUint(clientID, 10)},
			"request_id": {begin.RequestID},
		}
		var resp pollResponse
		if err := client.Call(ctx, Post(authService, "PollAuthSessionStatus", params), &resp); err != nil {
			return resp, clientID, fmt.Errorf("poll auth session: %w", err)
		}
		if resp.NewClientID != 0 {
			clientID = uint64(resp.NewClientID)
		}
		if resp.RefreshToken != "" {
			return resp, clientID, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return resp, clientID, fmt.Errorf("%w: approval not received in %s", ErrGuardRequired, o.pollTimeout)
			}
			return resp, clientID, ctx.Err()
		case <-ticker.C:
		}
	}
}

func validateSession(s *Session, requireClient bool) error {
	if s.steamID.AccountID() == 0 {
		return &InvariantError{Message: "steam ID missing after login"}
	}
	if requireClient && s.clientID == 0 {
		return &InvariantError{Message: "session ID not assigned"}
	}
	if s.accessToken == "" {
		return &InvariantError{Message: "access token missing after login"}
	}
	return nil
}
