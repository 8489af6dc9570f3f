package verification

import (
	"strings"
)

// Purpose определяет, какая Policy действует для кода
type Purpose int

const (
	PurposePasswordReset Purpose = iota + 1
	PurposeEmailVerification
	PurposeTwoFactorAuth
	PurposeAccountVerification
)

var purposeNames = map[Purpose]string{
	PurposePasswordReset:       "PASSWORD_RESET",
	PurposeEmailVerification:   "EMAIL_VERIFICATION",
	PurposeTwoFactorAuth:       "TWO_FACTOR_AUTH",
	PurposeAccountVerification: "ACCOUNT_VERIFICATION",
}

// AllPurposes возвращает все назначения в порядке объявления
func AllPurposes() []Purpose {
	return []Purpose{
		PurposePasswordReset,
		PurposeEmailVerification,
		PurposeTwoFactorAuth,
		PurposeAccountVerification,
	}
}

func (p Purpose) String() string {
	if name, ok := purposeNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid: p входит в число объявленных назначений
func (p Purpose) Valid() bool {
	_, ok := purposeNames[p]
	return ok
}

// ParsePurpose разбирает внешнее имя (PASSWORD_RESET) без учета регистра
func ParsePurpose(s string) (Purpose, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for p, name := range purposeNames {
		if name == normalized {
			return p, nil
		}
	}
	return 0, newError(KindUnknownPurpose, "unknown verification purpose "+s, nil)
}
