package consoleauth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegisterAdminMessage carries the profile fields from a verified assertion
// into the registration flow. New admins always start as WAITING.
type RegisterAdminMessage struct {
	SubjectID      string `json:"subject_id"`
	Email          string `json:"email"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
	UseHashid      bool
}

func (e RegisterAdminMessage) Type() string { return "admin.register" }

// RegisterAdminHandler registers first-contact admins inside a transaction.
type RegisterAdminHandler struct {
	repo RepositoryManager
}

// NewRegisterAdminHandler builds the handler over the repository manager.
func NewRegisterAdminHandler(repo RepositoryManager) *RegisterAdminHandler {
	return &RegisterAdminHandler{repo: repo}
}

func (h *RegisterAdminHandler) Execute(ctx context.Context, event RegisterAdminMessage) (*Admin, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during admin registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAdminHandler) execute(ctx context.Context, event RegisterAdminMessage) (*Admin, error) {
	if strings.TrimSpace(event.SubjectID) == "" {
		return nil, goerrors.New("subject id is required", goerrors.CategoryValidation)
	}

	admin := &Admin{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		admin.SubjectID = event.SubjectID
		admin.Email = event.Email
		admin.ProfilePicture = event.ProfilePicture
		admin.Username = getUsername(event.Username, event.Email)
		admin.Role = RoleWaiting
		admin.Status = StatusActive

		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				admin.ID = id
			}
		}

		var err error
		// registration is idempotent: a concurrent register for the same
		// subject resolves to the existing row
		if admin, err = h.repo.Admins().GetOrRegisterTx(ctx, tx, admin); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not register admin")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "admin registration transaction failed")
	}

	return admin, nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
