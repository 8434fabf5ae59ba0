package consoleauth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Admins is the console admin repository.
type Admins interface {
	repository.Repository[*Admin]

	GetBySubjectID(ctx context.Context, subjectID string) (*Admin, error)
	GetBySubjectIDTx(ctx context.Context, tx bun.IDB, subjectID string) (*Admin, error)
	ListAll(ctx context.Context) ([]*Admin, error)

	Register(ctx context.Context, admin *Admin) (*Admin, error)
	RegisterTx(ctx context.Context, tx bun.IDB, admin *Admin) (*Admin, error)
	GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *Admin) (*Admin, error)
	Create(ctx context.Context, record *Admin, criteria ...repository.InsertCriteria) (*Admin, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Admin, criteria ...repository.InsertCriteria) (*Admin, error)

	UpdateRole(ctx context.Context, subjectID string, role AdminRole) (*Admin, error)
	UpdateRoleTx(ctx context.Context, tx bun.IDB, subjectID string, role AdminRole) (*Admin, error)
	UpdateAccountStatus(ctx context.Context, subjectID string, status AdminStatus) (*Admin, error)
	UpdateAccountStatusTx(ctx context.Context, tx bun.IDB, subjectID string, status AdminStatus) (*Admin, error)

	TrackSuccessfulLogin(ctx context.Context, admin *Admin) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, admin *Admin) error
}

type admins struct {
	repository.Repository[*Admin]
	db *bun.DB
}

var (
	_ Admins                        = (*admins)(nil)
	_ repository.Repository[*Admin] = (*admins)(nil)
)

// NewAdminsRepository builds the bun-backed Admins repository.
func NewAdminsRepository(db *bun.DB) Admins {
	repo := repository.NewRepository[*Admin](db, repository.ModelHandlers[*Admin]{
		NewRecord: func() *Admin { return &Admin{} },
		GetID: func(a *Admin) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Admin, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &admins{
		Repository: repo,
		db:         db,
	}
}

func (a *admins) GetBySubjectID(ctx context.Context, subjectID string) (*Admin, error) {
	return a.GetBySubjectIDTx(ctx, a.db, subjectID)
}

func (a *admins) GetBySubjectIDTx(ctx context.Context, tx bun.IDB, subjectID string) (*Admin, error) {
	record := &Admin{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.subject_id = ?", strings.TrimSpace(subjectID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"subject_id": subjectID,
				})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *admins) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Admin, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *admins) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Admin, error) {
	options := resolveAdminIdentifier(identifier)

	for _, opt := range options {
		record := &Admin{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		record.EnsureStatus()
		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *admins) ListAll(ctx context.Context) ([]*Admin, error) {
	var records []*Admin
	err := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		record.EnsureStatus()
	}

	return records, nil
}

func (a *admins) Register(ctx context.Context, admin *Admin) (*Admin, error) {
	return a.RegisterTx(ctx, a.db, admin)
}

func (a *admins) RegisterTx(ctx context.Context, tx bun.IDB, admin *Admin) (*Admin, error) {
	return a.CreateTx(ctx, tx, admin)
}

func (a *admins) Create(ctx context.Context, record *Admin, criteria ...repository.InsertCriteria) (*Admin, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *admins) CreateTx(ctx context.Context, tx bun.IDB, record *Admin, criteria ...repository.InsertCriteria) (*Admin, error) {
	prepareAdminDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *admins) GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *Admin) (*Admin, error) {
	admin, err := a.GetBySubjectIDTx(ctx, tx, record.SubjectID)
	if err == nil {
		return admin, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.RegisterTx(ctx, tx, record)
}

func (a *admins) UpdateRole(ctx context.Context, subjectID string, role AdminRole) (*Admin, error) {
	return a.UpdateRoleTx(ctx, a.db, subjectID, role)
}

func (a *admins) UpdateRoleTx(ctx context.Context, tx bun.IDB, subjectID string, role AdminRole) (*Admin, error) {
	admin, err := a.GetBySubjectIDTx(ctx, tx, subjectID)
	if err != nil {
		return nil, err
	}

	record := &Admin{}
	record.ID = admin.ID
	record.Role = role

	updated, err := a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(admin.ID.String()))
	if err != nil {
		return nil, err
	}

	admin.Role = role
	if updated != nil && updated.Role != "" {
		admin.Role = updated.Role
	}

	return admin, nil
}

func (a *admins) UpdateAccountStatus(ctx context.Context, subjectID string, status AdminStatus) (*Admin, error) {
	return a.UpdateAccountStatusTx(ctx, a.db, subjectID, status)
}

func (a *admins) UpdateAccountStatusTx(ctx context.Context, tx bun.IDB, subjectID string, status AdminStatus) (*Admin, error) {
	admin, err := a.GetBySubjectIDTx(ctx, tx, subjectID)
	if err != nil {
		return nil, err
	}

	record := &Admin{}
	record.ID = admin.ID
	record.Status = status

	updated, err := a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(admin.ID.String()))
	if err != nil {
		return nil, err
	}

	admin.Status = status
	if updated != nil && updated.Status != "" {
		admin.Status = updated.Status
	}

	return admin, nil
}

func (a *admins) TrackSuccessfulLogin(ctx context.Context, admin *Admin) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, admin)
}

func (a *admins) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, admin *Admin) error {
	lastLoginAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "admins" AS "adm"
		SET
			"last_login_at" = ?
		WHERE
			("adm".id = ?)
			AND "adm"."deleted_at" IS NULL;
	`, lastLoginAt, admin.ID).Exec(ctx)

	return err
}

func prepareAdminDefaults(record *Admin) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleWaiting
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveAdminIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "subject_id",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
