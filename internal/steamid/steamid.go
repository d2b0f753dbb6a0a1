// Package steamid implements the 64-bit Steam identifier and its textual forms.
package steamid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSteamID is returned when text cannot be parsed as a Steam ID.
var ErrInvalidSteamID = errors.New("invalid steam id")

// AccountType is the 4-bit account type stored in a Steam ID.
type AccountType uint8

// Account types used by the Steam backend.
const (
	TypeInvalid        AccountType = 0
	TypeIndividual     AccountType = 1
	TypeMultiseat      AccountType = 2
	TypeGameServer     AccountType = 3
	TypeAnonGameServer AccountType = 4
	TypePending        AccountType = 5
	TypeContentServer  AccountType = 6
	TypeClan           AccountType = 7
	TypeChat           AccountType = 8
	TypeAnonUser       AccountType = 10
)

// Universe is the 8-bit universe stored in a Steam ID.
type Universe uint8

// UniversePublic is the only universe regular accounts live in.
const UniversePublic Universe = 1

// DesktopInstance is the instance used by individual accounts.
const DesktopInstance uint32 = 1

const (
	accountIDMask = 0xFFFFFFFF
	instanceMask  = 0x000FFFFF
	instanceShift = 32
	typeShift     = 52
	universeShift = 56
)

var typeLetters = map[AccountType]string{
	TypeInvalid:        "I",
	TypeIndividual:     "U",
	TypeMultiseat:      "M",
	TypeGameServer:     "G",
	TypeAnonGameServer: "A",
	TypePending:        "P",
	TypeContentServer:  "C",
	TypeClan:           "g",
	TypeChat:           "T",
	TypeAnonUser:       "a",
}

// ID is a 64-bit Steam identifier.
type ID uint64

// New assembles a Steam ID from its parts.
func New(accountID uint32, instance uint32, accountType AccountType, universe Universe) ID {
	return ID(uint64(universe)<<universeShift |
		uint64(accountType&0xF)<<typeShift |
		uint64(instance&instanceMask)<<instanceShift |
		uint64(accountID))
}

// FromAccountID returns the individual desktop Steam ID for an account id.
func FromAccountID(accountID uint32) ID {
	return New(accountID, DesktopInstance, TypeIndividual, UniversePublic)
}

// AccountID returns the low 32 bits of the id.
func (id ID) AccountID() uint32 {
	return uint32(uint64(id) & accountIDMask)
}

// Instance returns the 20-bit instance.
func (id ID) Instance() uint32 {
	return uint32((uint64(id) >> instanceShift) & instanceMask)
}

// Type returns the account type.
func (id ID) Type() AccountType {
	return AccountType((uint64(id) >> typeShift) & 0xF)
}

// Universe returns the universe.
func (id ID) Universe() Universe {
	return Universe(uint64(id) >> universeShift)
}

// IsValid reports whether the id names a real account.
func (id ID) IsValid() bool {
	return id.Type() != TypeInvalid && id.Universe() != 0 && id.AccountID() != 0
}

// Steam3 renders the id as "[U:1:1531059355]".
func (id ID) Steam3() string {
	letter, ok := typeLetters[id.Type()]
	if !ok {
		letter = "i"
	}
	if id.Type() == TypeChat {
		// chat ids carry their flavour in the instance bits
		switch {
		case id.Instance()&clanChatFlag != 0:
			letter = "c"
		case id.Instance()&lobbyChatFlag != 0:
			letter = "L"
		}
	}

	switch {
	case id.Type() == TypeAnonGameServer || id.Type() == TypeMultiseat:
		return fmt.Sprintf("[%s:%d:%d:%d]", letter, id.Universe(), id.AccountID(), id.Instance())
	case id.Type() == TypeIndividual && id.Instance() != DesktopInstance:
		return fmt.Sprintf("[%s:%d:%d:%d]", letter, id.Universe(), id.AccountID(), id.Instance())
	default:
		return fmt.Sprintf("[%s:%d:%d]", letter, id.Universe(), id.AccountID())
	}
}

// String returns the decimal steam64 form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

const (
	clanChatFlag  = (instanceMask + 1) >> 1
	lobbyChatFlag = (instanceMask + 1) >> 2
)

// ParseSteam3 parses the bracketed "[U:1:123]" or "[U:1:123:1]" form.
func ParseSteam3(s string) (ID, error) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return 0, fmt.Errorf("%w: %q is not in steam3 form", ErrInvalidSteamID, s)
	}
	parts := strings.Split(s[1:len(s)-1], ":")
	if len(parts) != 3 && len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q has %d fields", ErrInvalidSteamID, s, len(parts))
	}

	accountType, instance, ok := typeFromLetter(parts[0])
	if !ok {
		return 0, fmt.Errorf("%w: unknown account type %q", ErrInvalidSteamID, parts[0])
	}

	universe, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: universe %q: %v", ErrInvalidSteamID, parts[1], err)
	}
	accountID, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: account id %q: %v", ErrInvalidSteamID, parts[2], err)
	}
	if len(parts) == 4 {
		inst, err := strconv.ParseUint(parts[3], 10, 20)
		if err != nil {
			return 0, fmt.Errorf("%w: instance %q: %v", ErrInvalidSteamID, parts[3], err)
		}
		instance = uint32(inst)
	}

	return New(uint32(accountID), instance, accountType, Universe(universe)), nil
}

// Parse accepts either the steam3 form or a decimal steam64.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		return ParseSteam3(s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSteamID, s)
	}
	return ID(v), nil
}

func typeFromLetter(letter string) (AccountType, uint32, bool) {
	switch letter {
	case "U":
		return TypeIndividual, DesktopInstance, true
	case "c":
		return TypeChat, clanChatFlag, true
	case "L":
		return TypeChat, lobbyChatFlag, true
	case "T":
		return TypeChat, 0, true
	}
	for t, l := range typeLetters {
		if l == letter {
			return t, 0, true
		}
	}
	return TypeInvalid, 0, false
}

// MarshalJSON encodes the id as a JSON number in steam64 form.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalJSON accepts a JSON number, a decimal string or a steam3 string.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
