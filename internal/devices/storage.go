// Package devices keeps the push-token registration records the external
// notification dispatcher consumes. The core only maintains the records; it
// never sends a push itself.
package devices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"relay/infrastructure"
)

type Token struct {
	IdentityID string    `json:"identity_id"`
	DeviceID   string    `json:"device_id"`
	Token      string    `json:"token"`
	Platform   string    `json:"platform"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS device_tokens (
			identity_id VARCHAR(64) NOT NULL,
			device_id   VARCHAR(128) NOT NULL,
			token       TEXT NOT NULL,
			platform    VARCHAR(16) NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (identity_id, device_id)
		)`)
	if err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return nil
}

func (s *Storage) Save(ctx context.Context, token *Token) error {
	if token.IdentityID == "" || token.DeviceID == "" || token.Token == "" {
		return infrastructure.ErrValidation
	}
	return infrastructure.WithTransaction(s.db, ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO device_tokens (identity_id, device_id, token, platform, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (identity_id, device_id) DO UPDATE
			SET token = EXCLUDED.token, platform = EXCLUDED.platform, updated_at = NOW()`,
			token.IdentityID, token.DeviceID, token.Token, token.Platform)
		if err != nil {
			return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
		}
		return nil
	})
}

func (s *Storage) Delete(ctx context.Context, identityID, deviceID string) error {
	return infrastructure.WithTransaction(s.db, ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM device_tokens WHERE identity_id = $1 AND device_id = $2`,
			identityID, deviceID)
		if err != nil {
			return fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
		}
		return nil
	})
}

func (s *Storage) ListFor(ctx context.Context, identityID string) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity_id, device_id, token, platform, updated_at
		FROM device_tokens WHERE identity_id = $1`, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.IdentityID, &t.DeviceID, &t.Token, &t.Platform, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return tokens, nil
}
