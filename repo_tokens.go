package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type APITokens interface {
	GetOrCreateForUser(ctx context.Context, userID uuid.UUID) (*APIToken, error)
}

type apiTokens struct {
	db *bun.DB
}

var _ APITokens = (*apiTokens)(nil)

func NewAPITokensRepository(db *bun.DB) APITokens {
	return &apiTokens{db: db}
}

func (t *apiTokens) GetOrCreateForUser(ctx context.Context, userID uuid.UUID) (*APIToken, error) {
	record := &APIToken{}
	err := t.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return record, nil
	}

	if !isRecordNotFound(err) {
		return nil, err
	}

	key, err := newAPIKey()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record = &APIToken{
		Key:       key,
		UserID:    userID,
		CreatedAt: &now,
	}

	if _, err := t.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
