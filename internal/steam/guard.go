package steam

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/howeyc/gopass"

	"github.com/edgard/scposter/internal/steamid"
)

// GuardType is the kind of Steam Guard confirmation a session needs.
type GuardType int

const (
	GuardUnknown            GuardType = 0
	GuardNone               GuardType = 1
	GuardEmailCode          GuardType = 2
	GuardDeviceCode         GuardType = 3
	GuardDeviceConfirmation GuardType = 4
	GuardEmailConfirmation  GuardType = 5
	GuardMachineToken       GuardType = 6
)

func (g GuardType) String() string {
	switch g {
	case GuardNone:
		return "none"
	case GuardEmailCode:
		return "email_code"
	case GuardDeviceCode:
		return "device_code"
	case GuardDeviceConfirmation:
		return "device_confirmation"
	case GuardEmailConfirmation:
		return "email_confirmation"
	case GuardMachineToken:
		return "machine_token"
	default:
		return "unknown"
	}
}

// Confirmation is one of the guard actions Steam allows for a pending session.
type Confirmation struct {
	Type    GuardType `json:"confirmation_type"`
	Message string    `json:"associated_message"`
}

// CodeSubmitter sends a guard code for the pending session.
type CodeSubmitter func(ctx context.Context, code string, kind GuardType) error

// ConfirmationHandler resolves a pending Steam Guard confirmation.
// Handle reports false when it supports none of the offered confirmations.
type ConfirmationHandler interface {
	Handle(ctx context.Context, confirmations []Confirmation, submit CodeSubmitter) (bool, error)
}

// ConfirmationHandlerFunc adapts a function to ConfirmationHandler.
type ConfirmationHandlerFunc func(ctx context.Context, confirmations []Confirmation, submit CodeSubmitter) (bool, error)

func (f ConfirmationHandlerFunc) Handle(ctx context.Context, confirmations []Confirmation, submit CodeSubmitter) (bool, error) {
	return f(ctx, confirmations, submit)
}

type orHandler []ConfirmationHandler

// Or tries each handler in turn until one accepts the confirmation.
func Or(handlers ...ConfirmationHandler) ConfirmationHandler {
	return orHandler(handlers)
}

func (o orHandler) Handle(ctx context.Context, confirmations []Confirmation, submit CodeSubmitter) (bool, error) {
	for _, h := range o {
		if h == nil {
			continue
		}
		handled, err := h.Handle(ctx, confirmations, submit)
		if err != nil || handled {
			return handled, err
		}
	}
	return false, nil
}

func findConfirmation(confirmations []Confirmation, kinds ...GuardType) (Confirmation, bool) {
	for _, c := range confirmations {
		for _, k := range kinds {
			if c.Type == k {
				return c, true
			}
		}
	}
	return Confirmation{}, false
}

// PromptFunc reads a line of input after showing prompt.
type PromptFunc func(prompt string) (string, error)

// TerminalPrompt asks on stderr and reads the answer from the terminal without echo.
func TerminalPrompt(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	code, err := gopass.GetPasswd()
	if err != nil {
		return "", fmt.Errorf("couldn't read code: %w", err)
	}
	return string(code), nil
}

// CodePromptHandler asks the user for an email or authenticator code.
type CodePromptHandler struct {
	Prompt PromptFunc
}

func (h CodePromptHandler) Handle(ctx context.Context, confirmations []Confirmation, submit CodeSubmitter) (bool, error) {
	c, ok := findConfirmation(confirmations, GuardDeviceCode, GuardEmailCode)
	if !ok {
		return false, nil
	}

	prompt := h.Prompt
	if prompt == nil {
		prompt = TerminalPrompt
	}

	label := "Steam Guard code from your authenticator: "
	if c.Type == GuardEmailCode {
		label = "Steam Guard code sent to your email"
		if c.Message != "" {
			label += " (" + c.Message + ")"
		}
		label += ": "
	}

	code, err := prompt(label)
	if err != nil {
		return true, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return true, fmt.Errorf("%w: empty code", ErrGuardRequired)
	}
	return true, submit(ctx, code, c.Type)
}

// StaticCodeHandler submits a code known up front, for non-interactive runs.
type StaticCodeHandler struct {
	Code string
}

func (h StaticCodeHandler) Handle(ctx context.Context, confirmations []Confirmation, submit CodeSubmitter) (bool, error) {
	if h.Code == "" {
		return false, nil
	}
	c, ok := findConfirmation(confirmations, GuardDeviceCode, GuardEmailCode)
	if !ok {
		return false, nil
	}
	return true, submit(ctx, h.Code, c.Type)
}

// DeviceConfirmationHandler waits for the login to be approved in the Steam
// mobile app or from the email link. Approval is observed by polling.
type DeviceConfirmationHandler struct {
	Logger *slog.Logger
}

func (h DeviceConfirmationHandler) Handle(_ context.Context, confirmations []Confirmation, _ CodeSubmitter) (bool, error) {
	c, ok := findConfirmation(confirmations, GuardDeviceConfirmation, GuardEmailConfirmation)
	if !ok {
		return false, nil
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Waiting for login approval", "confirmation", c.Type)
	return true, nil
}

// DefaultConfirmationHandler prompts for a code and falls back to waiting for
// device approval.
func DefaultConfirmationHandler(logger *slog.Logger) ConfirmationHandler {
	return Or(CodePromptHandler{}, DeviceConfirmationHandler{Logger: logger})
}

// GuardStore persists refresh tokens so later logons can skip the credential flow.
type GuardStore interface {
	RefreshToken(ctx context.Context, account string) (token string, id steamid.ID, err error)
	SaveRefreshToken(ctx context.Context, account string, id steamid.ID, token string) error
}
