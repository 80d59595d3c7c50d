package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type sessions struct {
	db *bun.DB
}

var (
	_ SessionStore             = (*sessions)(nil)
	_ OrganizationSessionStore = (*sessions)(nil)
)

// NewSessionsRepository stores sessions in the sessions table
func NewSessionsRepository(db *bun.DB) SessionStore {
	return &sessions{db: db}
}

func (s *sessions) Save(ctx context.Context, session *Session) error {
	_, err := s.db.NewInsert().
		Model(session).
		On("CONFLICT (session_key) DO UPDATE").
		Set("organization_id = EXCLUDED.organization_id").
		Set("keep_me_logged_in = EXCLUDED.keep_me_logged_in").
		Set("last_login = EXCLUDED.last_login").
		Set("data = EXCLUDED.data").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

func (s *sessions) Get(ctx context.Context, key uuid.UUID) (*Session, error) {
	record := &Session{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.session_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"key": key.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (s *sessions) Delete(ctx context.Context, key uuid.UUID) error {
	_, err := s.db.NewDelete().
		Model((*Session)(nil)).
		Where("session_key = ?", key).
		Exec(ctx)
	return err
}

func (s *sessions) ClearOrganization(ctx context.Context, orgID uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*Session)(nil)).
		Set("organization_id = NULL").
		Where("organization_id = ?", orgID).
		Exec(ctx)
	return err
}
