package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Projects interface {
	Insert(ctx context.Context, project *Project) (*Project, error)
	IDsForOrganization(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
	DeleteForOrganization(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
}

type projects struct {
	db *bun.DB
}

var _ Projects = (*projects)(nil)

func NewProjectsRepository(db *bun.DB) Projects {
	return &projects{db: db}
}

func (p *projects) Insert(ctx context.Context, project *Project) (*Project, error) {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	if project.CreatedAt == nil {
		now := time.Now()
		project.CreatedAt = &now
	}

	if _, err := p.db.NewInsert().Model(project).Exec(ctx); err != nil {
		return nil, err
	}
	return project, nil
}

func (p *projects) IDsForOrganization(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	raw := []string{}
	err := p.db.NewSelect().
		Model((*Project)(nil)).
		Column("id").
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Scan(ctx, &raw)
	if err != nil {
		return nil, err
	}
	return parseUUIDs(raw)
}

// DeleteForOrganization removes every project of the organization and
// returns the ids that were deleted
func (p *projects) DeleteForOrganization(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := p.IDsForOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return ids, nil
	}

	_, err = p.db.NewDelete().
		Model((*Project)(nil)).
		Where("organization_id = ?", orgID).
		Exec(ctx)
	return ids, err
}

type SAMLConfigs interface {
	FindForOrganization(ctx context.Context, orgID uuid.UUID) (*SAMLConfig, error)
	Insert(ctx context.Context, cfg *SAMLConfig) (*SAMLConfig, error)
	Delete(ctx context.Context, cfg *SAMLConfig) error
}

type samlConfigs struct {
	db *bun.DB
}

var _ SAMLConfigs = (*samlConfigs)(nil)

func NewSAMLConfigsRepository(db *bun.DB) SAMLConfigs {
	return &samlConfigs{db: db}
}

func (s *samlConfigs) FindForOrganization(ctx context.Context, orgID uuid.UUID) (*SAMLConfig, error) {
	record := &SAMLConfig{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", orgID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"organization_id": orgID.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (s *samlConfigs) Insert(ctx context.Context, cfg *SAMLConfig) (*SAMLConfig, error) {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if _, err := s.db.NewInsert().Model(cfg).Exec(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *samlConfigs) Delete(ctx context.Context, cfg *SAMLConfig) error {
	_, err := s.db.NewDelete().
		Model((*SAMLConfig)(nil)).
		Where("id = ?", cfg.ID).
		Exec(ctx)
	return err
}
