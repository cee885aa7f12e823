package referralcode

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/referly/backend/internal/config"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/services/users"
)

const (
	fullCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// safeCharset drops visually ambiguous characters (0/O, 1/I)
	safeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// codePattern is the canonical referral code format
var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

// ErrCodeGenerationExhausted is returned when no unique code could be drawn
// within the configured attempt budget.
var ErrCodeGenerationExhausted = errors.New("CODE_GENERATION_EXHAUSTED")

// ErrInvalidCodeFormat is returned when a code fails the format check
var ErrInvalidCodeFormat = errors.New("INVALID_CODE_FORMAT")

// GenerateOptions controls a single code generation request. The zero value
// gives the defaults: configured length, no prefix or suffix, ambiguous
// characters and profane draws excluded.
type GenerateOptions struct {
	Length              int
	Prefix              string
	Suffix              string
	AllowSimilarLooking bool
	AllowProfanity      bool
	MaxAttempts         int
}

// ValidationResult is the outcome of validating a referral code
type ValidationResult struct {
	IsValid  bool         `json:"is_valid"`
	Code     string       `json:"code"`
	Reason   string       `json:"reason,omitempty"`
	Referrer *models.User `json:"referrer,omitempty"`
}

// Service generates and validates referral codes. It keeps a small
// in-process FIFO of pre-generated unique codes so that most callers are
// served without a store round-trip.
type Service struct {
	cfg     config.ReferralConfig
	userSvc *users.UserService

	mu    sync.Mutex
	cache []string
}

// NewService creates a new referral code service
func NewService(cfg config.ReferralConfig, userSvc *users.UserService) *Service {
	return &Service{cfg: cfg, userSvc: userSvc}
}

// Generate produces a unique referral code. Default-shaped requests are
// served from the pre-generation cache when possible; after every issuance
// the cache is topped back up in the background.
func (s *Service) Generate(opts GenerateOptions) (string, error) {
	s.applyDefaults(&opts)

	if code, ok := s.popCached(opts); ok {
		go s.refillCache(opts)
		return code, nil
	}

	code, err := s.generateUnique(opts)
	if err != nil {
		return "", err
	}

	go s.refillCache(opts)
	return code, nil
}

// Validate normalizes a code, checks its format and looks up the owning
// active user. A referrer account younger than the configured minimum age
// cannot be used, to blunt self-referral farming via instant signups.
func (s *Service) Validate(code string) (*ValidationResult, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	if !codePattern.MatchString(normalized) {
		return &ValidationResult{IsValid: false, Code: normalized, Reason: "invalid referral code format"}, nil
	}

	referrer, err := s.userSvc.GetUserByReferralCode(normalized)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return &ValidationResult{IsValid: false, Code: normalized, Reason: "referral code not found"}, nil
		}
		return nil, fmt.Errorf("error validating referral code: %w", err)
	}

	if time.Since(referrer.CreatedAt) < s.cfg.MinAccountAge {
		return &ValidationResult{
			IsValid: false,
			Code:    normalized,
			Reason:  "referrer account is too new",
		}, nil
	}

	return &ValidationResult{IsValid: true, Code: normalized, Referrer: referrer}, nil
}

// ClearCache empties the pre-generation cache
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
}

// CacheSize returns the number of ready-to-use cached codes
func (s *Service) CacheSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// generateUnique draws codes until one passes the filters and is unused in
// the store. Draws are cheap, so retries are immediate; the attempt bound
// exists purely to prevent unbounded loops near code-space exhaustion.
func (s *Service) generateUnique(opts GenerateOptions) (string, error) {
	charset := safeCharset
	if opts.AllowSimilarLooking {
		charset = fullCharset
	}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		code := opts.Prefix + s.draw(charset, opts.Length) + opts.Suffix

		if !codePattern.MatchString(code) {
			continue
		}
		if !opts.AllowProfanity && containsProfanity(code) {
			continue
		}

		inUse, err := s.userSvc.ReferralCodeInUse(code)
		if err != nil {
			return "", fmt.Errorf("error checking code uniqueness: %w", err)
		}
		if !inUse {
			return code, nil
		}
	}

	log.Printf("referral code generation exhausted after %d attempts", opts.MaxAttempts)
	return "", ErrCodeGenerationExhausted
}

// draw builds a random string of the given length from the charset
func (s *Service) draw(charset string, length int) string {
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// popCached takes a code from the cache when the request matches the
// default shape the cache was filled with. Losing a cached entry to a race
// only costs an extra generation round-trip.
func (s *Service) popCached(opts GenerateOptions) (string, bool) {
	if !s.cacheable(opts) {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) == 0 {
		return "", false
	}

	code := s.cache[0]
	s.cache = s.cache[1:]
	return code, true
}

// refillCache opportunistically tops up the cache with unique codes
func (s *Service) refillCache(opts GenerateOptions) {
	if !s.cacheable(opts) {
		return
	}

	for s.CacheSize() < s.cfg.CodeCacheSize {
		code, err := s.generateUnique(opts)
		if err != nil {
			log.Printf("referral code cache refill stopped: %v", err)
			return
		}

		s.mu.Lock()
		s.cache = append(s.cache, code)
		s.mu.Unlock()
	}
}

// cacheable reports whether a request matches the default code shape
func (s *Service) cacheable(opts GenerateOptions) bool {
	return opts.Prefix == "" && opts.Suffix == "" &&
		opts.Length == s.cfg.CodeLength &&
		!opts.AllowSimilarLooking && !opts.AllowProfanity
}

// applyDefaults fills in zero-valued options
func (s *Service) applyDefaults(opts *GenerateOptions) {
	if opts.Length == 0 {
		opts.Length = s.cfg.CodeLength
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = s.cfg.MaxCodeAttempts
	}
}
