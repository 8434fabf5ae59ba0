package consoleauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	verifyPath         = "/api/admin/auth/verify"
	registerPath       = "/api/admin/auth/register"
	adminsPath         = "/api/admin/users"
	defaultHTTPTimeout = 15 * time.Second
)

// SessionVerifier talks to the console API: it exchanges identity assertions
// for AuthorizationRecords and pushes admin mutations (role, status, login
// tracking) upstream.
type SessionVerifier struct {
	baseURL string
	client  *http.Client
	logger  Logger
}

// VerifierOption customizes SessionVerifier construction.
type VerifierOption func(*SessionVerifier)

// WithVerifierHTTPClient overrides the HTTP client (useful for tests).
func WithVerifierHTTPClient(client *http.Client) VerifierOption {
	return func(v *SessionVerifier) {
		if client != nil {
			v.client = client
		}
	}
}

// WithVerifierLogger overrides the logger.
func WithVerifierLogger(logger Logger) VerifierOption {
	return func(v *SessionVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewSessionVerifier creates a verifier against the configured API base URL.
func NewSessionVerifier(config Config, opts ...VerifierOption) *SessionVerifier {
	v := &SessionVerifier{
		baseURL: strings.TrimRight(config.GetAPIBaseURL(), "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

// Verify exchanges the assertion token for an AuthorizationRecord. When the
// admin has never been seen before, it registers them once and retries the
// verification; if that retry also fails the original not-registered failure
// is surfaced so callers see a consistent outcome.
func (v *SessionVerifier) Verify(ctx context.Context, assertionToken string) (*AuthorizationRecord, error) {
	record, err := v.verify(ctx, assertionToken)
	if err == nil {
		return record, nil
	}

	if !IsNotRegistered(err) {
		return nil, err
	}

	if _, regErr := v.Register(ctx, assertionToken); regErr != nil {
		v.logger.Warn("registration after failed verification did not succeed: %v", regErr)
		return nil, err
	}

	record, retryErr := v.verify(ctx, assertionToken)
	if retryErr != nil {
		v.logger.Warn("verification retry after registration failed: %v", retryErr)
		return nil, err
	}

	return record, nil
}

func (v *SessionVerifier) verify(ctx context.Context, assertionToken string) (*AuthorizationRecord, error) {
	record := &AuthorizationRecord{}
	err := v.do(ctx, http.MethodPost, verifyPath, "", map[string]string{
		"id_token": assertionToken,
	}, record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Register creates the admin on first contact. New admins start in the
// WAITING role until an operator approves them.
func (v *SessionVerifier) Register(ctx context.Context, assertionToken string) (*AuthorizationRecord, error) {
	record := &AuthorizationRecord{}
	err := v.do(ctx, http.MethodPost, registerPath, "", map[string]string{
		"id_token": assertionToken,
	}, record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateRole changes the target admin's role, authorized by the bearer token.
func (v *SessionVerifier) UpdateRole(ctx context.Context, bearer, subjectID string, role AdminRole) error {
	path := fmt.Sprintf("%s/%s/role", adminsPath, subjectID)
	return v.do(ctx, http.MethodPatch, path, bearer, map[string]string{
		"role": string(role),
	}, nil)
}

// UpdateStatus changes the target admin's account status.
func (v *SessionVerifier) UpdateStatus(ctx context.Context, bearer, subjectID string, status AdminStatus) error {
	path := fmt.Sprintf("%s/%s/status", adminsPath, subjectID)
	return v.do(ctx, http.MethodPatch, path, bearer, map[string]string{
		"status": string(status),
	}, nil)
}

// TrackLogin stamps the admin's last login time. Best-effort from the
// store's point of view; callers decide whether failures matter.
func (v *SessionVerifier) TrackLogin(ctx context.Context, bearer, subjectID string) error {
	path := fmt.Sprintf("%s/%s/last-login", adminsPath, subjectID)
	return v.do(ctx, http.MethodPatch, path, bearer, nil, nil)
}

// ListAdmins fetches every registered admin, authorized by the bearer token.
func (v *SessionVerifier) ListAdmins(ctx context.Context, bearer string) ([]*AuthorizationRecord, error) {
	var records []*AuthorizationRecord
	if err := v.do(ctx, http.MethodGet, adminsPath, bearer, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (v *SessionVerifier) do(ctx context.Context, method, path, bearer string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request payload")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build API request")
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := v.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "console API request failed").
			WithMetadata(map[string]any{
				"method": method,
				"path":   path,
			})
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return decodeAPIError(res, method, path)
	}

	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode API response").
			WithMetadata(map[string]any{
				"method": method,
				"path":   path,
			})
	}

	return nil
}

// apiErrorBody is the wire shape the console API uses for failures.
type apiErrorBody struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code"`
}

func decodeAPIError(res *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.TextCode != "" {
		switch body.TextCode {
		case TextCodeNotRegistered:
			return ErrNotRegistered
		case TextCodeAdminSuspended:
			return ErrAdminSuspended
		case TextCodeAdminInactive:
			return ErrAdminInactive
		case TextCodeInvalidRole:
			return ErrInvalidRole
		case TextCodeInvalidStatus:
			return ErrInvalidStatus
		case TextCodeAssertionExpired:
			return ErrAssertionExpired
		case TextCodeAssertionInvalid:
			return ErrAssertionInvalid
		}
	}

	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = res.Status
	}

	category := goerrors.CategoryOperation
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		category = goerrors.CategoryAuth
	}

	return goerrors.New(msg, category).WithMetadata(map[string]any{
		"method":      method,
		"path":        path,
		"status_code": res.StatusCode,
	})
}
