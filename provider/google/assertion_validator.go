package google

import (
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/melodia/console-auth"
)

// Config configures the Google assertion validator.
type Config struct {
	// JWKSEndpoint is where Google publishes its signing keys.
	JWKSEndpoint string

	// Issuer is the expected iss claim.
	Issuer string

	// Audience is the set of acceptable aud claims; a token matching any of
	// them passes.
	Audience []string

	// CacheTTL bounds how often the JWKS is refreshed in the background.
	CacheTTL time.Duration

	// KeyFunc overrides JWKS fetching entirely (useful for tests).
	KeyFunc jwt.Keyfunc

	// RequireVerifiedEmail rejects assertions whose email is unverified.
	RequireVerifiedEmail bool
}

// AssertionValidator validates Google-issued identity assertions.
type AssertionValidator struct {
	config  Config
	keyFunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
}

// NewAssertionValidator creates a validator backed by Google's JWKS.
func NewAssertionValidator(cfg Config) (*AssertionValidator, error) {
	v := &AssertionValidator{config: cfg}

	if cfg.KeyFunc != nil {
		v.keyFunc = cfg.KeyFunc
		return v, nil
	}

	if cfg.JWKSEndpoint == "" {
		return nil, fmt.Errorf("google: JWKS endpoint is required")
	}

	refreshInterval := cfg.CacheTTL
	if refreshInterval == 0 {
		refreshInterval = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.JWKSEndpoint, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWK set: %s", err)
		},
		RefreshInterval:   refreshInterval,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to get JWK set: %w", err)
	}

	v.jwks = jwks
	v.keyFunc = jwks.Keyfunc
	return v, nil
}

// Close stops the background JWKS refresh.
func (v *AssertionValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

type assertionClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Validate checks the raw assertion and maps it into the session view.
func (v *AssertionValidator) Validate(tokenString string) (*consoleauth.Assertion, error) {
	claims := &assertionClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	if !token.Valid {
		return nil, consoleauth.ErrAssertionInvalid
	}

	if len(v.config.Audience) > 0 && !audienceMatches(claims.Audience, v.config.Audience) {
		return nil, rejectAssertion("audience mismatch")
	}

	if v.config.RequireVerifiedEmail && !claims.EmailVerified {
		return nil, rejectAssertion("email not verified")
	}

	assertion := &consoleauth.Assertion{
		Token:       tokenString,
		SubjectID:   claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}
	if claims.ExpiresAt != nil {
		assertion.ExpiresAt = claims.ExpiresAt.Time
	}

	return assertion, nil
}

func audienceMatches(got jwt.ClaimStrings, want []string) bool {
	for _, audience := range want {
		for _, claimed := range got {
			if claimed == audience {
				return true
			}
		}
	}
	return false
}

func rejectAssertion(reason string) error {
	clone := consoleauth.ErrAssertionInvalid.Clone()
	if clone == nil {
		return consoleauth.ErrAssertionInvalid
	}
	clone.Source = consoleauth.ErrAssertionInvalid
	return clone.WithMetadata(map[string]any{"reason": reason})
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := consoleauth.ErrAssertionInvalid.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = consoleauth.ErrAssertionExpired.Clone()
	}

	if clone == nil {
		return err
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "google",
		"cause":    err.Error(),
	})
}
