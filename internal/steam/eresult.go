package steam

import "strconv"

// EResult is the status code Steam attaches to every API response.
type EResult int32

const (
	ResultInvalid                         EResult = 0
	ResultOK                              EResult = 1
	ResultFail                            EResult = 2
	ResultNoConnection                    EResult = 3
	ResultInvalidPassword                 EResult = 5
	ResultLoggedInElsewhere               EResult = 6
	ResultInvalidProtocolVer              EResult = 7
	ResultInvalidParam                    EResult = 8
	ResultFileNotFound                    EResult = 9
	ResultBusy                            EResult = 10
	ResultInvalidState                    EResult = 11
	ResultInvalidName                     EResult = 12
	ResultInvalidEmail                    EResult = 13
	ResultDuplicateName                   EResult = 14
	ResultAccessDenied                    EResult = 15
	ResultTimeout                         EResult = 16
	ResultBanned                          EResult = 17
	ResultAccountNotFound                 EResult = 18
	ResultInvalidSteamID                  EResult = 19
	ResultServiceUnavailable              EResult = 20
	ResultNotLoggedOn                     EResult = 21
	ResultPending                         EResult = 22
	ResultEncryptionFailure               EResult = 23
	ResultInsufficientPrivilege           EResult = 24
	ResultLimitExceeded                   EResult = 25
	ResultRevoked                         EResult = 26
	ResultExpired                         EResult = 27
	ResultAlreadyRedeemed                 EResult = 28
	ResultDuplicateRequest                EResult = 29
	ResultAlreadyOwned                    EResult = 30
	ResultIPNotFound                      EResult = 31
	ResultPersistFailed                   EResult = 32
	ResultLockingFailed                   EResult = 33
	ResultLogonSessionReplaced            EResult = 34
	ResultConnectFailed                   EResult = 35
	ResultHandshakeFailed                 EResult = 36
	ResultIOFailure                       EResult = 37
	ResultRemoteDisconnect                EResult = 38
	ResultBlocked                         EResult = 40
	ResultIgnored                         EResult = 41
	ResultNoMatch                         EResult = 42
	ResultAccountDisabled                 EResult = 43
	ResultServiceReadOnly                 EResult = 44
	ResultTryAnotherCM                    EResult = 48
	ResultSuspended                       EResult = 51
	ResultCancelled                       EResult = 52
	ResultRemoteCallFailed                EResult = 55
	ResultAccountLogonDenied              EResult = 63
	ResultInvalidLoginAuthCode            EResult = 65
	ResultAccountLockedDown               EResult = 73
	ResultRateLimitExceeded               EResult = 84
	ResultAccountLoginDeniedNeedTwoFactor EResult = 85
	ResultAccountLoginDeniedThrottle      EResult = 87
	ResultTwoFactorCodeMismatch           EResult = 88
)

var resultNames = map[EResult]string{
	ResultInvalid:                         "Invalid",
	ResultOK:                              "OK",
	ResultFail:                            "Fail",
	ResultNoConnection:                    "NoConnection",
	ResultInvalidPassword:                 "InvalidPassword",
	ResultLoggedInElsewhere:               "LoggedInElsewhere",
	ResultInvalidProtocolVer:              "InvalidProtocolVer",
	ResultInvalidParam:                    "InvalidParam",
	ResultFileNotFound:                    "FileNotFound",
	ResultBusy:                            "Busy",
	ResultInvalidState:                    "InvalidState",
	ResultInvalidName:                     "InvalidName",
	ResultInvalidEmail:                    "InvalidEmail",
	ResultDuplicateName:                   "DuplicateName",
	ResultAccessDenied:                    "AccessDenied",
	ResultTimeout:                         "Timeout",
	ResultBanned:                          "Banned",
	ResultAccountNotFound:                 "AccountNotFound",
	ResultInvalidSteamID:                  "InvalidSteamID",
	ResultServiceUnavailable:              "ServiceUnavailable",
	ResultNotLoggedOn:                     "NotLoggedOn",
	ResultPending:                         "Pending",
	ResultEncryptionFailure:               "EncryptionFailure",
	ResultInsufficientPrivilege:           "InsufficientPrivilege",
	ResultLimitExceeded:                   "LimitExceeded",
	ResultRevoked:                         "Revoked",
	ResultExpired:                         "Expired",
	ResultAlreadyRedeemed:                 "AlreadyRedeemed",
	ResultDuplicateRequest:                "DuplicateRequest",
	ResultAlreadyOwned:                    "AlreadyOwned",
	ResultIPNotFound:                      "IPNotFound",
	ResultPersistFailed:                   "PersistFailed",
	ResultLockingFailed:                   "LockingFailed",
	ResultLogonSessionReplaced:            "LogonSessionReplaced",
	ResultConnectFailed:                   "ConnectFailed",
	ResultHandshakeFailed:                 "HandshakeFailed",
	ResultIOFailure:                       "IOFailure",
	ResultRemoteDisconnect:                "RemoteDisconnect",
	ResultBlocked:                         "Blocked",
	ResultIgnored:                         "Ignored",
	ResultNoMatch:                         "NoMatch",
	ResultAccountDisabled:                 "AccountDisabled",
	ResultServiceReadOnly:                 "ServiceReadOnly",
	ResultTryAnotherCM:                    "TryAnotherCM",
	ResultSuspended:                       "Suspended",
	ResultCancelled:                       "Cancelled",
	ResultRemoteCallFailed:                "RemoteCallFailed",
	ResultAccountLogonDenied:              "AccountLogonDenied",
	ResultInvalidLoginAuthCode:            "InvalidLoginAuthCode",
	ResultAccountLockedDown:               "AccountLockedDown",
	ResultRateLimitExceeded:               "RateLimitExceeded",
	ResultAccountLoginDeniedNeedTwoFactor: "AccountLoginDeniedNeedTwoFactor",
	ResultAccountLoginDeniedThrottle:      "AccountLoginDeniedThrottle",
	ResultTwoFactorCodeMismatch:           "TwoFactorCodeMismatch",
}

func (r EResult) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "EResult(" + strconv.Itoa(int(r)) + ")"
}
