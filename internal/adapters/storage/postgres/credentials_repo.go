package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"custody-ledger/internal/ports/credentials"
)

// CredentialsRepo guarda la credencial pública vigente de cada actor.
type CredentialsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewCredentialsRepo(db *sql.DB) *CredentialsRepo {
	return &CredentialsRepo{db: db, now: time.Now}
}

func (r *CredentialsRepo) PublicCredential(ctx context.Context, actorID string) (string, error) {
	var cred string
	err := r.db.QueryRowContext(ctx, `
		SELECT credential FROM actor_credentials WHERE actor_id = $1
	`, strings.TrimSpace(actorID)).Scan(&cred)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", credentials.ErrUnknownActor
		}
		return "", err
	}
	return cred, nil
}

func (r *CredentialsRepo) Register(ctx context.Context, actorID, credential string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return credentials.ErrUnknownActor
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO actor_credentials (actor_id, credential, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (actor_id) DO UPDATE
		SET credential = EXCLUDED.credential, updated_at = EXCLUDED.updated_at
	`, actorID, credential, r.now().UTC())
	return err
}
