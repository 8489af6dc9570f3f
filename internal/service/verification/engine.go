package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	"github.com/gigmarket/gigauth/internal/domain/repository"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

// AttemptLimiter: грубый счетчик попыток в кеше, общий для всех инстансов
type AttemptLimiter interface {
	Increment(ctx context.Context, scopeKey string, window time.Duration) (int64, error)
	IsBlocked(ctx context.Context, scopeKey string, threshold int64) (bool, error)
	Reset(ctx context.Context, scopeKey string) error
}

// Notifier доставляет выпущенный код. Ошибка доставки не отменяет выпуск.
type Notifier interface {
	SendCode(ctx context.Context, destination, code string, purpose Purpose, expiresIn time.Duration) error
}

// WarningNotificationFailed выставляется в IssueResult, если код не доставлен
const WarningNotificationFailed = "notification_failed"

// Config содержит настройки движка поверх политик назначений
type Config struct {
	// CodePepper подмешивается в хеш каждого кода
	CodePepper string
	// ResendCooldown запрещает повторный выпуск для той же пары внутри окна. 0 отключает.
	ResendCooldown time.Duration
	// IssueLimit ограничивает число выпусков для (subject, purpose) за IssueWindow. 0 отключает.
	IssueLimit  int64
	IssueWindow time.Duration
	// VerifyLimit ограничивает неудачные проверки пары суммарно по всем ее кодам
	VerifyLimit  int64
	VerifyWindow time.Duration
	// IPLimit ограничивает неудачные проверки с одного IP за VerifyWindow
	IPLimit       int64
	NotifyTimeout time.Duration
	MaxCASRetries int
}

// DefaultConfig возвращает значения для продакшена
func DefaultConfig() Config {
	return Config{
		ResendCooldown: 60 * time.Second,
		IssueLimit:     5,
		IssueWindow:    15 * time.Minute,
		VerifyLimit:    20,
		VerifyWindow:   time.Hour,
		IPLimit:        50,
		NotifyTimeout:  5 * time.Second,
		MaxCASRetries:  3,
	}
}

// Deps: зависимости движка. Limiter и Notifier необязательны.
type Deps struct {
	Policies  *PolicyRegistry
	Store     repository.OTPRepository
	Limiter   AttemptLimiter
	Notifier  Notifier
	Generator Generator
}

// Option настраивает Engine
type Option func(*Engine)

// WithClock подменяет time.Now (тесты истечения срока)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// IssueResult возвращается из Issue
type IssueResult struct {
	Record    *entity.OTPRecord
	Code      string
	ExpiresAt time.Time
	// Warning не пуст, если код сохранен, но не доставлен
	Warning string
}

// VerifyResult возвращается из Verify при успехе
type VerifyResult struct {
	Valid      bool
	Subject    string
	Purpose    Purpose
	VerifiedAt time.Time
}

// Status описывает активный код пары, не раскрывая его
type Status struct {
	Active               bool       `json:"active"`
	State                string     `json:"state,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	AttemptsLeft         int        `json:"attempts_left"`
	CanResend            bool       `json:"can_resend"`
	CooldownRemainingSec int        `json:"cooldown_remaining_sec"`
}

// Engine выпускает и проверяет одноразовые коды. Состояния между вызовами не хранит:
// все изменяемые данные живут в хранилище и счетчике.
type Engine struct {
	policies  *PolicyRegistry
	store     repository.OTPRepository
	limiter   AttemptLimiter
	notifier  Notifier
	generator Generator
	cfg       Config
	now       func() time.Time
}

// NewEngine проверяет зависимости и заполняет умолчания конфигурации
func NewEngine(deps Deps, cfg Config, opts ...Option) (*Engine, error) {
	if deps.Policies == nil {
		return nil, fmt.Errorf("policy registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("otp repository is required")
	}
	if deps.Generator == nil {
		deps.Generator = NewCryptoGenerator()
	}
	if cfg.MaxCASRetries <= 0 {
		cfg.MaxCASRetries = 3
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if cfg.IssueWindow <= 0 {
		cfg.IssueWindow = 15 * time.Minute
	}
	if cfg.VerifyWindow <= 0 {
		cfg.VerifyWindow = time.Hour
	}

	e := &Engine{
		policies:  deps.Policies,
		store:     deps.Store,
		limiter:   deps.Limiter,
		notifier:  deps.Notifier,
		generator: deps.Generator,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Issue генерирует код для (subject, purpose), заменяя предыдущий код пары,
// и отправляет его на subject.
func (e *Engine) Issue(ctx context.Context, subject string, purpose Purpose) (*IssueResult, error) {
	policy, err := e.policies.PolicyFor(purpose)
	if err != nil {
		log.Printf("[VerificationEngine] ERROR: issue with unregistered purpose %d: %v", int(purpose), err)
		return nil, err
	}
	subject = NormalizeSubject(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", apperrors.ErrValidation)
	}

	now := e.now()
	if e.cfg.ResendCooldown > 0 {
		existing, err := e.store.GetBySubjectPurpose(ctx, subject, purpose.String())
		switch {
		case err == nil:
			if existing.State == entity.OTPStateIssued && now.Before(existing.IssuedAt.Add(e.cfg.ResendCooldown)) {
				return nil, newError(KindResendCooldown, "please wait before requesting a new code", nil)
			}
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			return nil, persistenceUnavailable("failed to load previous code", err)
		}
	}

	if e.limiter != nil && e.cfg.IssueLimit > 0 {
		count, err := e.limiter.Increment(ctx, IssueScope(subject, purpose), e.cfg.IssueWindow)
		if err != nil {
			log.Printf("[VerificationEngine] WARN: issue counter unavailable for %s/%s: %v", purpose, subject, err)
			return nil, cacheUnavailable("could not record issue attempt", err)
		}
		if count > e.cfg.IssueLimit {
			log.Printf("[VerificationEngine] INFO: issue rate limited for %s/%s (count=%d)", purpose, subject, count)
			return nil, newError(KindRateLimited, "too many codes requested", nil)
		}
	}

	code, err := e.generator.Generate(policy.CodeLength)
	if err != nil {
		log.Printf("[VerificationEngine] ERROR: code generation failed for %s: %v", purpose, err)
		return nil, err
	}
	salt, err := generateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code salt: %w", err)
	}

	record := &entity.OTPRecord{
		Subject:      subject,
		Purpose:      purpose.String(),
		CodeHash:     hashCode(code, salt, e.cfg.CodePepper),
		CodeSalt:     salt,
		IssuedAt:     now,
		ExpiresAt:    now.Add(policy.Expiry()),
		AttemptsUsed: 0,
		MaxAttempts:  policy.MaxAttempts,
		State:        entity.OTPStateIssued,
	}
	if err := e.store.Upsert(ctx, record); err != nil {
		log.Printf("[VerificationEngine] WARN: failed to store code for %s/%s: %v", purpose, subject, err)
		return nil, persistenceUnavailable("failed to store code", err)
	}

	result := &IssueResult{Record: record, Code: code, ExpiresAt: record.ExpiresAt}

	if e.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(ctx, e.cfg.NotifyTimeout)
		err := e.notifier.SendCode(notifyCtx, subject, code, purpose, policy.Expiry())
		cancel()
		if err != nil {
			log.Printf("[VerificationEngine] WARN: code stored but delivery failed for %s/%s: %v", purpose, subject, err)
			result.Warning = WarningNotificationFailed
		}
	}

	log.Printf("[VerificationEngine] INFO: issued %s code for %s, expires at %s", purpose, subject, record.ExpiresAt.Format(time.RFC3339))
	return result, nil
}

// Verify сверяет code с активной записью (subject, purpose)
func (e *Engine) Verify(ctx context.Context, subject string, purpose Purpose, code string) (*VerifyResult, error) {
	policy, err := e.policies.PolicyFor(purpose)
	if err != nil {
		log.Printf("[VerificationEngine] ERROR: verify with unregistered purpose %d: %v", int(purpose), err)
		return nil, err
	}
	subject = NormalizeSubject(subject)
	code = strings.TrimSpace(code)

	scopes := e.failureScopes(ctx, subject, purpose)
	if err := e.checkBlocked(ctx, scopes); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < e.cfg.MaxCASRetries; attempt++ {
		record, err := e.store.GetBySubjectPurpose(ctx, subject, purpose.String())
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				log.Printf("[VerificationEngine] DEBUG: no %s code for %s", purpose, subject)
				return nil, newError(KindNotFound, "no active code", nil)
			}
			return nil, persistenceUnavailable("failed to load code", err)
		}

		now := e.now()
		next, kind := transition(record, code, policy, now, e.cfg.CodePepper)
		if next != nil {
			swapped, err := e.store.CompareAndSwap(ctx, next, record.Version)
			if err != nil {
				return nil, persistenceUnavailable("failed to persist verification attempt", err)
			}
			if !swapped {
				log.Printf("[VerificationEngine] DEBUG: concurrent update on %s/%s, retrying", purpose, subject)
				continue
			}
		}

		if kind == "" {
			e.resetScope(ctx, VerifyScope(subject, purpose))
			log.Printf("[VerificationEngine] INFO: %s code verified for %s", purpose, subject)
			return &VerifyResult{Valid: true, Subject: subject, Purpose: purpose, VerifiedAt: now}, nil
		}

		if countsAsFailure(kind, record, next) {
			e.recordFailure(ctx, scopes)
		}
		log.Printf("[VerificationEngine] INFO: %s verification for %s failed: %s (attempts %d/%d)",
			purpose, subject, kind, attemptsOf(record, next), policy.MaxAttempts)
		return nil, newError(kind, "", nil)
	}

	return nil, persistenceUnavailable("too many concurrent updates", apperrors.ErrConflict)
}

// Status сообщает клиенту состояние кода пары
func (e *Engine) Status(ctx context.Context, subject string, purpose Purpose) (*Status, error) {
	policy, err := e.policies.PolicyFor(purpose)
	if err != nil {
		return nil, err
	}
	subject = NormalizeSubject(subject)

	record, err := e.store.GetBySubjectPurpose(ctx, subject, purpose.String())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &Status{CanResend: true, AttemptsLeft: policy.MaxAttempts}, nil
		}
		return nil, persistenceUnavailable("failed to load code", err)
	}

	now := e.now()
	status := &Status{State: string(record.State), CanResend: true}
	if record.State == entity.OTPStateIssued && !record.IsExpired(now) {
		exp := record.ExpiresAt
		status.Active = true
		status.ExpiresAt = &exp
		status.AttemptsLeft = record.AttemptsLeft()
		if e.cfg.ResendCooldown > 0 {
			remaining := int(record.IssuedAt.Add(e.cfg.ResendCooldown).Sub(now).Seconds())
			if remaining > 0 {
				status.CanResend = false
				status.CooldownRemainingSec = remaining
			}
		}
	}
	return status, nil
}

// transition вычисляет следующее состояние записи и вид отказа ("" при успехе).
// next == nil, если сохранять нечего.
func transition(record *entity.OTPRecord, code string, policy Policy, now time.Time, pepper string) (*entity.OTPRecord, Kind) {
	switch record.State {
	case entity.OTPStateVerified:
		return nil, KindAlreadyConsumed
	case entity.OTPStateExpired:
		return nil, KindExpired
	case entity.OTPStateLocked:
		if record.IsExpired(now) {
			return nil, KindExpired
		}
		return nil, KindAttemptsExceeded
	}

	if record.IsExpired(now) {
		next := *record
		next.State = entity.OTPStateExpired
		next.AttemptsUsed++
		next.ConsumedAt = &now
		return &next, KindExpired
	}

	if record.AttemptsUsed >= policy.MaxAttempts {
		next := *record
		next.State = entity.OTPStateLocked
		next.ConsumedAt = &now
		return &next, KindAttemptsExceeded
	}

	expected := hashCode(code, record.CodeSalt, pepper)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(record.CodeHash)) != 1 {
		next := *record
		next.AttemptsUsed++
		if next.AttemptsUsed >= policy.MaxAttempts {
			next.State = entity.OTPStateLocked
			next.ConsumedAt = &now
		}
		return &next, KindInvalidCode
	}

	next := *record
	next.State = entity.OTPStateVerified
	next.ConsumedAt = &now
	return &next, ""
}

// countsAsFailure: повторная проверка погашенного кода расходует грубые счетчики,
// хотя сама запись уже не меняется. NotFound и AttemptsExceeded не считаются.
func countsAsFailure(kind Kind, record, next *entity.OTPRecord) bool {
	if kind == KindAlreadyConsumed {
		return true
	}
	return next != nil && next.AttemptsUsed > record.AttemptsUsed
}

func attemptsOf(record, next *entity.OTPRecord) int {
	if next != nil {
		return next.AttemptsUsed
	}
	return record.AttemptsUsed
}

func (e *Engine) failureScopes(ctx context.Context, subject string, purpose Purpose) []scopeLimit {
	var scopes []scopeLimit
	if e.cfg.VerifyLimit > 0 {
		scopes = append(scopes, scopeLimit{key: VerifyScope(subject, purpose), limit: e.cfg.VerifyLimit})
	}
	if ip := ClientIPFromContext(ctx); ip != "" && e.cfg.IPLimit > 0 {
		scopes = append(scopes, scopeLimit{key: IPScope(ip), limit: e.cfg.IPLimit})
	}
	return scopes
}

type scopeLimit struct {
	key   string
	limit int64
}

// checkBlocked: если счетчик нельзя прочитать, проверка отклоняется, а не считается пройденной
func (e *Engine) checkBlocked(ctx context.Context, scopes []scopeLimit) error {
	if e.limiter == nil {
		return nil
	}
	for _, s := range scopes {
		blocked, err := e.limiter.IsBlocked(ctx, s.key, s.limit)
		if err != nil {
			log.Printf("[VerificationEngine] WARN: attempt counter %s unavailable: %v", s.key, err)
			return cacheUnavailable("could not check attempt counter", err)
		}
		if blocked {
			log.Printf("[VerificationEngine] INFO: scope %s is rate limited", s.key)
			return newError(KindRateLimited, "too many failed attempts", nil)
		}
	}
	return nil
}

// recordFailure увеличивает грубые счетчики после того, как запись сохранена
func (e *Engine) recordFailure(ctx context.Context, scopes []scopeLimit) {
	if e.limiter == nil {
		return
	}
	for _, s := range scopes {
		if _, err := e.limiter.Increment(ctx, s.key, e.cfg.VerifyWindow); err != nil {
			log.Printf("[VerificationEngine] WARN: failed to record failure for %s: %v", s.key, err)
		}
	}
}

func (e *Engine) resetScope(ctx context.Context, key string) {
	if e.limiter == nil || e.cfg.VerifyLimit <= 0 {
		return
	}
	if err := e.limiter.Reset(ctx, key); err != nil {
		log.Printf("[VerificationEngine] WARN: failed to reset %s: %v", key, err)
	}
}

// NormalizeSubject приводит идентификатор к нижнему регистру и обрезает пробелы
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// Ключи scope задаются относительно пространства auth:attempts: счетчика.

func VerifyScope(subject string, purpose Purpose) string {
	return "otp:" + purpose.String() + ":" + subject
}

func IssueScope(subject string, purpose Purpose) string {
	return "issue:" + purpose.String() + ":" + subject
}

// IPScope считает неверные коды с одного IP отдельно от счетчиков входа по паролю
func IPScope(ip string) string {
	return "otp:ip:" + ip
}

type clientIPKey struct{}

// WithClientIP передает IP клиента, чтобы Verify ограничивал попытки и по IP
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func generateSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
