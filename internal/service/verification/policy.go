package verification

import (
	"fmt"
	"time"
)

// Policy задает длину кода, срок жизни и лимит попыток для одного назначения
type Policy struct {
	CodeLength    int
	ExpiryMinutes int
	MaxAttempts   int
}

// Expiry возвращает срок жизни кода
func (p Policy) Expiry() time.Duration {
	return time.Duration(p.ExpiryMinutes) * time.Minute
}

// Validate проверяет ограничения политики
func (p Policy) Validate() error {
	if p.CodeLength < MinCodeLength || p.CodeLength > MaxCodeLength {
		return fmt.Errorf("code length %d out of range [%d,%d]", p.CodeLength, MinCodeLength, MaxCodeLength)
	}
	if p.ExpiryMinutes <= 0 {
		return fmt.Errorf("expiry minutes must be positive, got %d", p.ExpiryMinutes)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", p.MaxAttempts)
	}
	return nil
}

// PolicyTable содержит ровно одну политику на назначение. Новое назначение
// добавляется полем сюда, иначе оно не попадет в реестр.
type PolicyTable struct {
	PasswordReset       Policy
	EmailVerification   Policy
	TwoFactorAuth       Policy
	AccountVerification Policy
}

// DefaultPolicyTable используется, если конфигурация не переопределяет назначение
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		PasswordReset:       Policy{CodeLength: 6, ExpiryMinutes: 10, MaxAttempts: 5},
		EmailVerification:   Policy{CodeLength: 6, ExpiryMinutes: 15, MaxAttempts: 5},
		TwoFactorAuth:       Policy{CodeLength: 6, ExpiryMinutes: 5, MaxAttempts: 3},
		AccountVerification: Policy{CodeLength: 8, ExpiryMinutes: 30, MaxAttempts: 5},
	}
}

func (t PolicyTable) lookup(p Purpose) (Policy, bool) {
	switch p {
	case PurposePasswordReset:
		return t.PasswordReset, true
	case PurposeEmailVerification:
		return t.EmailVerification, true
	case PurposeTwoFactorAuth:
		return t.TwoFactorAuth, true
	case PurposeAccountVerification:
		return t.AccountVerification, true
	}
	return Policy{}, false
}

// PolicyRegistry после создания только читается
type PolicyRegistry struct {
	table PolicyTable
}

// NewPolicyRegistry проверяет каждую политику таблицы
func NewPolicyRegistry(table PolicyTable) (*PolicyRegistry, error) {
	for _, p := range AllPurposes() {
		policy, _ := table.lookup(p)
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("invalid policy for %s: %w", p, err)
		}
	}
	return &PolicyRegistry{table: table}, nil
}

// PolicyFor возвращает политику назначения или ErrUnknownPurpose
func (r *PolicyRegistry) PolicyFor(purpose Purpose) (Policy, error) {
	policy, ok := r.table.lookup(purpose)
	if !ok {
		return Policy{}, newError(KindUnknownPurpose, fmt.Sprintf("no policy registered for purpose %d", int(purpose)), nil)
	}
	return policy, nil
}
