// Package server exposes the console admin API: assertion verification,
// first-contact registration, and admin management endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/melodia/console-auth"
	"github.com/melodia/console-auth/middleware/assertionware"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Patch(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// Controller handles the console admin API routes.
type Controller struct {
	Debug        bool
	Logger       consoleauth.Logger
	Repo         consoleauth.RepositoryManager
	Validator    assertionware.AssertionValidator
	Registrar    *consoleauth.RegisterAdminHandler
	Sink         consoleauth.ActivitySink
	ErrorHandler router.ErrorHandler
}

// ControllerOption customizes the controller.
type ControllerOption func(*Controller) *Controller

// WithRepository sets the repository manager.
func WithRepository(repo consoleauth.RepositoryManager) ControllerOption {
	return func(c *Controller) *Controller {
		c.Repo = repo
		return c
	}
}

// WithValidator sets the assertion validator.
func WithValidator(validator assertionware.AssertionValidator) ControllerOption {
	return func(c *Controller) *Controller {
		c.Validator = validator
		return c
	}
}

// WithLogger sets the logger.
func WithLogger(logger consoleauth.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithActivitySink sets the audit sink.
func WithActivitySink(sink consoleauth.ActivitySink) ControllerOption {
	return func(c *Controller) *Controller {
		if sink != nil {
			c.Sink = sink
		}
		return c
	}
}

// WithDebug enables request payload dumping.
func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// WithErrorHandler overrides how handler errors become responses.
func WithErrorHandler(handler router.ErrorHandler) ControllerOption {
	return func(c *Controller) *Controller {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// NewController builds the API controller.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in admin API controller...")
	}

	if c.Validator == nil {
		panic("Missing AssertionValidator in admin API controller...")
	}

	if c.Logger == nil {
		c.Logger = consoleauth.DefaultLogger()
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = defaultErrHandler
	}

	c.Registrar = consoleauth.NewRegisterAdminHandler(c.Repo)

	return c
}

// RegisterRoutes mounts the API. The admins group is protected by the
// assertion middleware with a SYSTEM_ADMIN floor for mutations; listing only
// needs a live, non-waiting session.
func (c *Controller) RegisterRoutes(group RouteRegistrar) {
	group.Post("/auth/verify", c.VerifySession)
	group.Post("/auth/register", c.RegisterAdmin)

	group.Get("/users", c.ListAdmins, c.sessionGuard(""))
	group.Patch("/users/:id/role", c.UpdateRole, c.sessionGuard(consoleauth.RoleSystemAdmin))
	group.Patch("/users/:id/status", c.UpdateStatus, c.sessionGuard(consoleauth.RoleSystemAdmin))
	group.Patch("/users/:id/last-login", c.TrackLastLogin, c.sessionGuard(""))
}

func (c *Controller) sessionGuard(minimumRole consoleauth.AdminRole) router.MiddlewareFunc {
	return assertionware.New(assertionware.Config{
		Validator:      c.Validator,
		RecordResolver: c.resolveRecord,
		MinimumRole:    minimumRole,
		ErrorHandler: func(ctx router.Context, err error) error {
			return c.ErrorHandler(ctx, err)
		},
	})
}

// VerifyRequest payload
type VerifyRequest struct {
	IDToken string `json:"id_token" form:"id_token"`
}

// Validate runs the payload validations.
func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required),
	)
}

// RoleRequest payload
type RoleRequest struct {
	Role string `json:"role" form:"role"`
}

// Validate runs the payload validations.
func (r RoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required),
	)
}

// StatusRequest payload
type StatusRequest struct {
	Status string `json:"status" form:"status"`
}

// Validate runs the payload validations.
func (r StatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required),
	)
}

// VerifySession exchanges an identity assertion for the admin's
// AuthorizationRecord. Unknown subjects get ADMIN_NOT_REGISTERED so clients
// know to register and retry.
func (c *Controller) VerifySession(ctx router.Context) error {
	payload := VerifyRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse verify payload"))
	}

	if c.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	if err := payload.Validate(); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verify payload"))
	}

	assertion, err := c.Validator.Validate(payload.IDToken)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	record, err := c.resolveRecord(ctx.Context(), assertion)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

// RegisterAdmin creates the admin row for a first-contact assertion. The new
// admin starts as WAITING/ACTIVE; re-registering an existing subject returns
// the existing record.
func (c *Controller) RegisterAdmin(ctx router.Context) error {
	payload := VerifyRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse register payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid register payload"))
	}

	assertion, err := c.Validator.Validate(payload.IDToken)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	admin, err := c.Registrar.Execute(ctx.Context(), consoleauth.RegisterAdminMessage{
		SubjectID: assertion.SubjectID,
		Email:     assertion.Email,
		Username:  assertion.DisplayName,
		UseHashid: true,
	})
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.recordActivity(ctx, consoleauth.ActivityEvent{
		EventType: consoleauth.ActivityEventAdminRegistered,
		Actor:     consoleauth.ActorRef{ID: assertion.SubjectID, Type: "admin"},
		SubjectID: admin.SubjectID,
	})

	return ctx.JSON(http.StatusCreated, admin.Record())
}

// ListAdmins returns every registered admin.
func (c *Controller) ListAdmins(ctx router.Context) error {
	admins, err := c.Repo.Admins().ListAll(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "could not list admins"))
	}

	records := make([]*consoleauth.AuthorizationRecord, 0, len(admins))
	for _, admin := range admins {
		records = append(records, admin.Record())
	}

	return ctx.JSON(router.StatusOK, records)
}

// UpdateRole changes the target admin's role.
func (c *Controller) UpdateRole(ctx router.Context) error {
	subjectID := ctx.Param("id")

	payload := RoleRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse role payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role payload"))
	}

	role, ok := consoleauth.ParseRole(payload.Role)
	if !ok {
		return c.ErrorHandler(ctx, rejectWith(consoleauth.ErrInvalidRole, map[string]any{
			"role": payload.Role,
		}))
	}

	admin, err := c.Repo.Admins().UpdateRole(ctx.Context(), subjectID, role)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	actor, _ := consoleauth.RouterRecord(ctx, "")
	c.recordActivity(ctx, consoleauth.ActivityEvent{
		EventType: consoleauth.ActivityEventRoleChanged,
		Actor:     actorRef(actor),
		SubjectID: admin.SubjectID,
		Metadata:  map[string]any{"role": role},
	})

	return ctx.JSON(router.StatusOK, admin.Record())
}

// UpdateStatus changes the target admin's account status.
func (c *Controller) UpdateStatus(ctx router.Context) error {
	subjectID := ctx.Param("id")

	payload := StatusRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse status payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid status payload"))
	}

	status, ok := consoleauth.ParseStatus(payload.Status)
	if !ok {
		return c.ErrorHandler(ctx, rejectWith(consoleauth.ErrInvalidStatus, map[string]any{
			"status": payload.Status,
		}))
	}

	admin, err := c.Repo.Admins().UpdateAccountStatus(ctx.Context(), subjectID, status)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	actor, _ := consoleauth.RouterRecord(ctx, "")
	c.recordActivity(ctx, consoleauth.ActivityEvent{
		EventType: consoleauth.ActivityEventStatusChanged,
		Actor:     actorRef(actor),
		SubjectID: admin.SubjectID,
		Metadata:  map[string]any{"status": status},
	})

	return ctx.JSON(router.StatusOK, admin.Record())
}

// TrackLastLogin stamps the target admin's last login time. Admins may only
// stamp themselves.
func (c *Controller) TrackLastLogin(ctx router.Context) error {
	subjectID := ctx.Param("id")

	caller, ok := consoleauth.RouterRecord(ctx, "")
	if !ok || caller.SubjectID != subjectID {
		return c.ErrorHandler(ctx, rejectWith(consoleauth.ErrNoActiveSession, map[string]any{
			"reason": "admins may only track their own login",
		}))
	}

	admin, err := c.Repo.Admins().GetBySubjectID(ctx.Context(), subjectID)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if err := c.Repo.Admins().TrackSuccessfulLogin(ctx.Context(), admin); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "could not track login"))
	}

	return ctx.JSON(router.StatusOK, map[string]string{"result": "ok"})
}

func (c *Controller) resolveRecord(ctx context.Context, assertion *consoleauth.Assertion) (*consoleauth.AuthorizationRecord, error) {
	admin, err := c.Repo.Admins().GetBySubjectID(ctx, assertion.SubjectID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, consoleauth.ErrNotRegistered
		}
		return nil, err
	}

	switch admin.Status {
	case consoleauth.StatusSuspended:
		return nil, consoleauth.ErrAdminSuspended
	case consoleauth.StatusInactive:
		return nil, consoleauth.ErrAdminInactive
	}

	return admin.Record(), nil
}

func (c *Controller) recordActivity(ctx router.Context, event consoleauth.ActivityEvent) {
	if c.Sink == nil {
		return
	}
	if err := c.Sink.Record(ctx.Context(), event); err != nil {
		c.Logger.Warn("admin API activity sink error: %v", err)
	}
}

// rejectWith attaches metadata to a copy of the sentinel so the shared value
// never mutates under concurrent requests.
func rejectWith(base *goerrors.Error, metadata map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(metadata)
}

func actorRef(record *consoleauth.AuthorizationRecord) consoleauth.ActorRef {
	if record == nil {
		return consoleauth.ActorRef{Type: "system"}
	}
	return consoleauth.ActorRef{ID: record.SubjectID, Type: "admin"}
}

type apiError struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code,omitempty"`
}

func defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ctx.JSON(router.StatusInternalServerError, apiError{Error: err.Error()})
	}

	status := statusForError(richErr)
	return ctx.JSON(status, apiError{
		Error:    richErr.Message,
		TextCode: richErr.TextCode,
	})
}

func statusForError(err *goerrors.Error) int {
	switch err.TextCode {
	case consoleauth.TextCodeNotRegistered:
		return http.StatusNotFound
	case consoleauth.TextCodeAdminSuspended, consoleauth.TextCodeAdminInactive:
		return router.StatusForbidden
	case consoleauth.TextCodeAssertionExpired, consoleauth.TextCodeAssertionInvalid, consoleauth.TextCodeNoActiveSession:
		return router.StatusUnauthorized
	case consoleauth.TextCodeInvalidRole, consoleauth.TextCodeInvalidStatus:
		return router.StatusBadRequest
	}

	switch err.Category {
	case goerrors.CategoryAuth:
		return router.StatusUnauthorized
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return router.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return router.StatusInternalServerError
	}
}
