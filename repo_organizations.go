package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Organizations interface {
	repository.Repository[*Organization]

	Insert(ctx context.Context, org *Organization) (*Organization, error)
	InsertTx(ctx context.Context, tx bun.IDB, org *Organization) (*Organization, error)
	FindByUUID(ctx context.Context, id uuid.UUID) (*Organization, error)
	FindByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Organization, error)
	FirstByTitle(ctx context.Context, title string) (*Organization, error)
	FirstByTitleTx(ctx context.Context, tx bun.IDB, title string) (*Organization, error)
	FirstOrganization(ctx context.Context) (*Organization, error)
	FirstOrganizationTx(ctx context.Context, tx bun.IDB) (*Organization, error)
	AnyExists(ctx context.Context) (bool, error)
	AnyExistsTx(ctx context.Context, tx bun.IDB) (bool, error)
	ListAll(ctx context.Context) ([]*Organization, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Organization, error)
	Destroy(ctx context.Context, org *Organization) error
}

type organizations struct {
	repository.Repository[*Organization]
	db *bun.DB
}

var _ Organizations = (*organizations)(nil)

func NewOrganizationsRepository(db *bun.DB) Organizations {
	repo := repository.NewRepository[*Organization](db, repository.ModelHandlers[*Organization]{
		NewRecord: func() *Organization { return &Organization{} },
		GetID: func(o *Organization) uuid.UUID {
			if o == nil {
				return uuid.Nil
			}
			return o.ID
		},
		SetID: func(o *Organization, id uuid.UUID) {
			if o != nil {
				o.ID = id
			}
		},
		GetIdentifier: func() string {
			return "title"
		},
	})

	return &organizations{
		Repository: repo,
		db:         db,
	}
}

func (o *organizations) Insert(ctx context.Context, org *Organization) (*Organization, error) {
	return o.InsertTx(ctx, o.db, org)
}

func (o *organizations) InsertTx(ctx context.Context, tx bun.IDB, org *Organization) (*Organization, error) {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}

	if org.CreatedAt == nil {
		now := time.Now()
		org.CreatedAt = &now
	}

	if org.Token == "" {
		org.Token = NewOrganizationToken()
	}

	if _, err := tx.NewInsert().Model(org).Exec(ctx); err != nil {
		return nil, err
	}
	return org, nil
}

func (o *organizations) FindByUUID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return o.FindByUUIDTx(ctx, o.db, id)
}

func (o *organizations) FindByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Organization, error) {
	record := &Organization{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (o *organizations) FirstByTitle(ctx context.Context, title string) (*Organization, error) {
	return o.FirstByTitleTx(ctx, o.db, title)
}

func (o *organizations) FirstByTitleTx(ctx context.Context, tx bun.IDB, title string) (*Organization, error) {
	record := &Organization{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.title = ?", title).
		Order("created_at ASC", "id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"title": title,
				})
		}
		return nil, err
	}
	return record, nil
}

func (o *organizations) FirstOrganization(ctx context.Context) (*Organization, error) {
	return o.FirstOrganizationTx(ctx, o.db)
}

func (o *organizations) FirstOrganizationTx(ctx context.Context, tx bun.IDB) (*Organization, error) {
	record := &Organization{}
	err := tx.NewSelect().
		Model(record).
		Order("created_at ASC", "id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

func (o *organizations) AnyExists(ctx context.Context) (bool, error) {
	return o.AnyExistsTx(ctx, o.db)
}

func (o *organizations) AnyExistsTx(ctx context.Context, tx bun.IDB) (bool, error) {
	return tx.NewSelect().Model((*Organization)(nil)).Exists(ctx)
}

func (o *organizations) ListAll(ctx context.Context) ([]*Organization, error) {
	records := []*Organization{}
	err := o.db.NewSelect().
		Model(&records).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	return records, err
}

func (o *organizations) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Organization, error) {
	records := []*Organization{}
	err := o.db.NewSelect().
		Model(&records).
		Join("JOIN organization_members AS om ON om.organization_id = org.id").
		Where("om.user_id = ?", userID).
		Order("org.created_at ASC", "org.id ASC").
		Scan(ctx)
	return records, err
}

func (o *organizations) Destroy(ctx context.Context, org *Organization) error {
	_, err := o.db.NewDelete().
		Model((*Organization)(nil)).
		Where("id = ?", org.ID).
		Exec(ctx)
	return err
}

// NewOrganizationToken returns a random shared signup token
func NewOrganizationToken() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
