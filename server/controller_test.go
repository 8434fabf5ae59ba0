package server_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/melodia/console-auth"
	"github.com/melodia/console-auth/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	assertion *consoleauth.Assertion
	err       error
}

func (v *stubValidator) Validate(string) (*consoleauth.Assertion, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.assertion, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []consoleauth.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event consoleauth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) count(eventType consoleauth.ActivityEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			total++
		}
	}
	return total
}

func newTestApp(t *testing.T, validator *stubValidator, sink consoleauth.ActivitySink) *server.App {
	t.Helper()

	app, err := server.NewApp(server.AppConfig{
		DSN:       ":memory:",
		Validator: validator,
		Sink:      sink,
	})
	require.NoError(t, err)
	require.NoError(t, app.EnsureSchema(context.Background()))
	t.Cleanup(func() { app.Close() })

	return app
}

func newController(t *testing.T, app *server.App, validator *stubValidator, sink consoleauth.ActivitySink, opts ...server.ControllerOption) *server.Controller {
	t.Helper()

	base := []server.ControllerOption{
		server.WithRepository(app.Repo()),
		server.WithValidator(validator),
		server.WithActivitySink(sink),
	}
	return server.NewController(append(base, opts...)...)
}

func seedAdmin(t *testing.T, app *server.App, subjectID string, role consoleauth.AdminRole, status consoleauth.AdminStatus) *consoleauth.Admin {
	t.Helper()

	admin, err := app.Repo().Admins().Register(context.Background(), &consoleauth.Admin{
		SubjectID: subjectID,
		Email:     subjectID + "@example.com",
		Username:  subjectID,
		Role:      role,
		Status:    status,
	})
	require.NoError(t, err)
	return admin
}

func bindVerifyPayload(ctx *router.MockContext, idToken string) {
	ctx.On("Bind", mock.AnythingOfType("*server.VerifyRequest")).
		Run(func(args mock.Arguments) {
			payload := args.Get(0).(*server.VerifyRequest)
			payload.IDToken = idToken
		}).Return(nil)
}

func TestVerifySessionKnownAdmin(t *testing.T) {
	validator := &stubValidator{assertion: &consoleauth.Assertion{SubjectID: "sub-1", Email: "sub-1@example.com"}}
	app := newTestApp(t, validator, nil)
	ctrl := newController(t, app, validator, nil)

	seedAdmin(t, app, "sub-1", consoleauth.RoleContentAdmin, consoleauth.StatusActive)

	ctx := router.NewMockContext()
	bindVerifyPayload(ctx, "raw-assertion")
	ctx.On("Context").Return(context.Background())

	var record *consoleauth.AuthorizationRecord
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		record = args.Get(1).(*consoleauth.AuthorizationRecord)
	}).Return(nil)

	require.NoError(t, ctrl.VerifySession(ctx))
	require.NotNil(t, record)
	assert.Equal(t, "sub-1", record.SubjectID)
	assert.Equal(t, consoleauth.RoleContentAdmin, record.Role)
	assert.True(t, record.Authorized())
}

func TestVerifySessionUnknownAdminReturnsNotFound(t *testing.T) {
	validator := &stubValidator{assertion: &consoleauth.Assertion{SubjectID: "ghost"}}
	app := newTestApp(t, validator, nil)
	ctrl := newController(t, app, validator, nil)

	ctx := router.NewMockContext()
	bindVerifyPayload(ctx, "raw-assertion")
	ctx.On("Context").Return(context.Background())
	ctx.On("JSON", http.StatusNotFound, mock.Anything).Return(nil)

	require.NoError(t, ctrl.VerifySession(ctx))
	ctx.AssertExpectations(t)
}

func TestVerifySessionSuspendedAdmin(t *testing.T) {
	validator := &stubValidator{assertion: &consoleauth.Assertion{SubjectID: "sub-1"}}
	app := newTestApp(t, validator, nil)

	var handled error
	ctrl := newController(t, app, validator, nil, server.WithErrorHandler(func(_ router.Context, err error) error {
		handled = err
		return nil
	}))

	seedAdmin(t, app, "sub-1", consoleauth.RoleContentAdmin, consoleauth.StatusSuspended)

	ctx := router.NewMockContext()
	bindVerifyPayload(ctx, "raw-assertion")
	ctx.On("Context").Return(context.Background())

	require.NoError(t, ctrl.VerifySession(ctx))
	assert.ErrorIs(t, handled, consoleauth.ErrAdminSuspended)
}

func TestVerifySessionInvalidAssertion(t *testing.T) {
	validator := &stubValidator{err: consoleauth.ErrAssertionInvalid}
	app := newTestApp(t, validator, nil)

	var handled error
	ctrl := newController(t, app, validator, nil, server.WithErrorHandler(func(_ router.Context, err error) error {
		handled = err
		return nil
	}))

	ctx := router.NewMockContext()
	bindVerifyPayload(ctx, "garbage")

	require.NoError(t, ctrl.VerifySession(ctx))
	assert.ErrorIs(t, handled, consoleauth.ErrAssertionInvalid)
}

func TestVerifySessionRejectsEmptyPayload(t *testing.T) {
	validator := &stubValidator{assertion: &consoleauth.Assertion{SubjectID: "sub-1"}}
	app := newTestApp(t, validator, nil)

	var handled error
	ctrl := newController(t, app, validator, nil, server.WithErrorHandler(func(_ router.Context, err error) error {
		handled = err
		return nil
	}))

	ctx := router.NewMockContext()
	bindVerifyPayload(ctx, "")

	require.NoError(t, ctrl.VerifySession(ctx))
	require.Error(t, handled)
}

func TestRegisterAdminCreatesWaitingAdmin(t *testing.T) {
	validator := &stubValidator{assertion: &consoleauth.Assertion{
		SubjectID:   "sub-1",
		Email:       "ada@example.com",
		DisplayName: "Ada",
	}}
	sink := &captureSink{}
	app := newTestApp(t, validator, sink)
	ctrl := newController(t, app, validator, sink)

	ctx := router.NewMockContext()
	bindVerifyPayload(ctx, "raw-assertion")
	ctx.On("Context").Return(context.Background())

	var record *consoleauth.AuthorizationRecord
	ctx.On("JSON", http.StatusCreated, mock.Anything).Run(func(args mock.Arguments) {
		record = args.Get(1).(*consoleauth.AuthorizationRecord)
	}).Return(nil)

	require.NoError(t, ctrl.RegisterAdmin(ctx))
	require.NotNil(t, record)
	assert.Equal(t, "sub-1", record.SubjectID)
	assert.True(t, record.Pending())
	assert.Equal(t, 1, sink.count(consoleauth.ActivityEventAdminRegistered))

	stored, err := app.Repo().Admins().GetBySubjectID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, consoleauth.RoleWaiting, stored.Role)
	assert.Equal(t, "Ada", stored.Username)
}

func TestListAdmins(t *testing.T) {
	validator := &stubValidator{}
	app := newTestApp(t, validator, nil)
	ctrl := newController(t, app, validator, nil)

	seedAdmin(t, app, "sub-1", consoleauth.RoleSuperAdmin, consoleauth.StatusActive)
	seedAdmin(t, app, "sub-2", consoleauth.RoleWaiting, consoleauth.StatusActive)

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	var records []*consoleauth.AuthorizationRecord
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		records = args.Get(1).([]*consoleauth.AuthorizationRecord)
	}).Return(nil)

	require.NoError(t, ctrl.ListAdmins(ctx))
	require.Len(t, records, 2)
}

func TestUpdateRolePersistsAndAudits(t *testing.T) {
	validator := &stubValidator{}
	sink := &captureSink{}
	app := newTestApp(t, validator, sink)
	ctrl := newController(t, app, validator, sink)

	seedAdmin(t, app, "sub-2", consoleauth.RoleWaiting, consoleauth.StatusActive)

	ctx := router.NewMockContext()
	ctx.ParamsM["id"] = "sub-2"
	ctx.LocalsMock["admin"] = &consoleauth.AuthorizationRecord{
		SubjectID: "sub-1",
		Role:      consoleauth.RoleSuperAdmin,
		Status:    consoleauth.StatusActive,
	}
	ctx.On("Bind", mock.AnythingOfType("*server.RoleRequest")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*server.RoleRequest).Role = "CONTENT_ADMIN"
		}).Return(nil)
	ctx.On("Context").Return(context.Background())

	var record *consoleauth.AuthorizationRecord
	ctx.On("JSON", router.StatusOK, mock.Anything).Run(func(args mock.Arguments) {
		record = args.Get(1).(*consoleauth.AuthorizationRecord)
	}).Return(nil)

	require.NoError(t, ctrl.UpdateRole(ctx))
	require.NotNil(t, record)
	assert.Equal(t, consoleauth.RoleContentAdmin, record.Role)
	assert.Equal(t, 1, sink.count(consoleauth.ActivityEventRoleChanged))

	stored, err := app.Repo().Admins().GetBySubjectID(context.Background(), "sub-2")
	require.NoError(t, err)
	assert.Equal(t, consoleauth.RoleContentAdmin, stored.Role)
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	validator := &stubValidator{}
	app := newTestApp(t, validator, nil)

	var handled error
	ctrl := newController(t, app, validator, nil, server.WithErrorHandler(func(_ router.Context, err error) error {
		handled = err
		return nil
	}))

	seedAdmin(t, app, "sub-2", consoleauth.RoleWaiting, consoleauth.StatusActive)

	ctx := router.NewMockContext()
	ctx.ParamsM["id"] = "sub-2"
	ctx.On("Bind", mock.AnythingOfType("*server.RoleRequest")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*server.RoleRequest).Role = "OVERLORD"
		}).Return(nil)

	require.NoError(t, ctrl.UpdateRole(ctx))
	assert.ErrorIs(t, handled, consoleauth.ErrInvalidRole)
}

func TestUpdateStatusPersists(t *testing.T) {
	validator := &stubValidator{}
	sink := &captureSink{}
	app := newTestApp(t, validator, sink)
	ctrl := newController(t, app, validator, sink)

	seedAdmin(t, app, "sub-2", consoleauth.RoleContentAdmin, consoleauth.StatusActive)

	ctx := router.NewMockContext()
	ctx.ParamsM["id"] = "sub-2"
	ctx.On("Bind", mock.AnythingOfType("*server.StatusRequest")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*server.StatusRequest).Status = "SUSPENDED"
		}).Return(nil)
	ctx.On("Context").Return(context.Background())
	ctx.On("JSON", router.StatusOK, mock.Anything).Return(nil)

	require.NoError(t, ctrl.UpdateStatus(ctx))
	assert.Equal(t, 1, sink.count(consoleauth.ActivityEventStatusChanged))

	stored, err := app.Repo().Admins().GetBySubjectID(context.Background(), "sub-2")
	require.NoError(t, err)
	assert.Equal(t, consoleauth.StatusSuspended, stored.Status)
}

func TestTrackLastLoginSelfOnly(t *testing.T) {
	validator := &stubValidator{}
	app := newTestApp(t, validator, nil)

	var handled error
	ctrl := newController(t, app, validator, nil, server.WithErrorHandler(func(_ router.Context, err error) error {
		handled = err
		return nil
	}))

	seedAdmin(t, app, "sub-1", consoleauth.RoleContentAdmin, consoleauth.StatusActive)

	caller := &consoleauth.AuthorizationRecord{
		SubjectID: "sub-1",
		Role:      consoleauth.RoleContentAdmin,
		Status:    consoleauth.StatusActive,
	}

	ctx := router.NewMockContext()
	ctx.ParamsM["id"] = "sub-1"
	ctx.LocalsMock["admin"] = caller
	ctx.On("Context").Return(context.Background())
	ctx.On("JSON", router.StatusOK, mock.Anything).Return(nil)

	require.NoError(t, ctrl.TrackLastLogin(ctx))
	require.NoError(t, handled)

	stored, err := app.Repo().Admins().GetBySubjectID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)

	// stamping somebody else is rejected
	other := router.NewMockContext()
	other.ParamsM["id"] = "sub-9"
	other.LocalsMock["admin"] = caller

	require.NoError(t, ctrl.TrackLastLogin(other))
	assert.ErrorIs(t, handled, consoleauth.ErrNoActiveSession)
}

func TestNewControllerRequiresDependencies(t *testing.T) {
	assert.Panics(t, func() {
		server.NewController(server.WithValidator(&stubValidator{}))
	})

	validator := &stubValidator{}
	app := newTestApp(t, validator, nil)
	assert.Panics(t, func() {
		server.NewController(server.WithRepository(app.Repo()))
	})
}
