package identity

import (
	"context"
	"errors"
	"fmt"

	"relay/infrastructure"
	"relay/internal/database"
	"relay/pkg/jwt"

	"gorm.io/gorm"
)

// Identity is an authenticated account the core reasons about but does not
// own. The auth service issues credentials; the core only verifies them.
type Identity struct {
	ID           string
	Handle       string
	DisplayName  string
	Active       bool
	TokenVersion int
}

// Verifier is the reusable credential gate. Every boundary event that needs
// an identity goes through it instead of re-implementing token checks.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// Directory resolves identity records for display and addressing.
type Directory interface {
	ByID(ctx context.Context, id string) (*Identity, error)
	ByHandle(ctx context.Context, handle string) (*Identity, error)
}

type Service struct {
	tokens *jwt.JWT
	db     *database.Database
}

func NewService(tokens *jwt.JWT, db *database.Database) *Service {
	return &Service{tokens: tokens, db: db}
}

func (s *Service) Verify(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, infrastructure.ErrAuthentication
	}

	claims, err := s.tokens.ValidateToken(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrAuthentication, err)
	}

	ident, err := s.ByID(ctx, claims.IdentityID)
	if err != nil {
		return nil, infrastructure.ErrAuthentication
	}

	// A token minted before the account's version bump is no longer valid,
	// even if its expiry has not passed.
	if !ident.Active || ident.TokenVersion != claims.TokenVersion {
		return nil, infrastructure.ErrAuthentication
	}

	return ident, nil
}

func (s *Service) ByID(ctx context.Context, id string) (*Identity, error) {
	var record database.Identity
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, infrastructure.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return fromRecord(&record), nil
}

func (s *Service) ByHandle(ctx context.Context, handle string) (*Identity, error) {
	var record database.Identity
	err := s.db.WithContext(ctx).First(&record, "handle = ?", handle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, infrastructure.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", infrastructure.ErrTransientStorage, err)
	}
	return fromRecord(&record), nil
}

func fromRecord(record *database.Identity) *Identity {
	return &Identity{
		ID:           record.ID,
		Handle:       record.Handle,
		DisplayName:  record.DisplayName,
		Active:       record.Status == database.IdentityActive,
		TokenVersion: record.TokenVersion,
	}
}
