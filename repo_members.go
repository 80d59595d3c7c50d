package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultPageSize is the members page size when none is requested
const DefaultPageSize = 30

// MembersPage is one page of organization memberships
type MembersPage struct {
	Count   int                   `json:"count"`
	Results []*OrganizationMember `json:"results"`
}

type Memberships interface {
	Find(ctx context.Context, userID, orgID uuid.UUID) (*OrganizationMember, error)
	FindTx(ctx context.Context, tx bun.IDB, userID, orgID uuid.UUID) (*OrganizationMember, error)
	InsertTx(ctx context.Context, tx bun.IDB, member *OrganizationMember) (*OrganizationMember, error)
	// AddMember creates the membership unless it already exists
	AddMember(ctx context.Context, userID, orgID uuid.UUID, role MemberRole) (*OrganizationMember, error)
	AddMemberTx(ctx context.Context, tx bun.IDB, userID, orgID uuid.UUID, role MemberRole) (*OrganizationMember, error)
	RemoveMember(ctx context.Context, userID, orgID uuid.UUID) error
	Page(ctx context.Context, orgID uuid.UUID, page, pageSize int) (*MembersPage, error)
	OrganizationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	DeleteForOrganization(ctx context.Context, orgID uuid.UUID) error
}

type memberships struct {
	db *bun.DB
}

var _ Memberships = (*memberships)(nil)

func NewMembershipsRepository(db *bun.DB) Memberships {
	return &memberships{db: db}
}

func (m *memberships) Find(ctx context.Context, userID, orgID uuid.UUID) (*OrganizationMember, error) {
	return m.FindTx(ctx, m.db, userID, orgID)
}

func (m *memberships) FindTx(ctx context.Context, tx bun.IDB, userID, orgID uuid.UUID) (*OrganizationMember, error) {
	record := &OrganizationMember{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.organization_id = ?", orgID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id":         userID.String(),
					"organization_id": orgID.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (m *memberships) InsertTx(ctx context.Context, tx bun.IDB, member *OrganizationMember) (*OrganizationMember, error) {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}

	if member.CreatedAt == nil {
		now := time.Now()
		member.CreatedAt = &now
	}

	if !member.Role.IsValid() {
		member.Role = RoleMember
	}

	if _, err := tx.NewInsert().Model(member).Exec(ctx); err != nil {
		return nil, err
	}
	return member, nil
}

func (m *memberships) AddMember(ctx context.Context, userID, orgID uuid.UUID, role MemberRole) (*OrganizationMember, error) {
	return m.AddMemberTx(ctx, m.db, userID, orgID, role)
}

func (m *memberships) AddMemberTx(ctx context.Context, tx bun.IDB, userID, orgID uuid.UUID, role MemberRole) (*OrganizationMember, error) {
	existing, err := m.FindTx(ctx, tx, userID, orgID)
	if err == nil {
		return existing, nil
	}

	if !isRecordNotFound(err) {
		return nil, err
	}

	return m.InsertTx(ctx, tx, &OrganizationMember{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
	})
}

func (m *memberships) RemoveMember(ctx context.Context, userID, orgID uuid.UUID) error {
	res, err := m.db.NewDelete().
		Model((*OrganizationMember)(nil)).
		Where("user_id = ?", userID).
		Where("organization_id = ?", orgID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"user_id":         userID.String(),
				"organization_id": orgID.String(),
			})
	}
	return nil
}

// Page returns memberships ordered by join date, pages start at 1
func (m *memberships) Page(ctx context.Context, orgID uuid.UUID, page, pageSize int) (*MembersPage, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	records := []*OrganizationMember{}
	count, err := m.db.NewSelect().
		Model(&records).
		Relation("User").
		Where("?TableAlias.organization_id = ?", orgID).
		Order("om.created_at ASC", "om.id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}

	return &MembersPage{
		Count:   count,
		Results: records,
	}, nil
}

func (m *memberships) OrganizationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	raw := []string{}
	err := m.db.NewSelect().
		Model((*OrganizationMember)(nil)).
		Column("organization_id").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx, &raw)
	if err != nil {
		return nil, err
	}
	return parseUUIDs(raw)
}

func (m *memberships) DeleteForOrganization(ctx context.Context, orgID uuid.UUID) error {
	_, err := m.db.NewDelete().
		Model((*OrganizationMember)(nil)).
		Where("organization_id = ?", orgID).
		Exec(ctx)
	return err
}
