// Package share issues signed document share links: an HS256 JWT
// binding a document id with a TTL, recorded so links can be revoked
// before their natural expiry.
package share

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	"storyview-server-go/internal/platform/storage"
)

const defaultTTL = 72 * time.Hour

// Link is one issued share token.
type Link struct {
	Token      string    `json:"token"`
	TokenID    string    `json:"token_id"`
	DocumentID string    `json:"document_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Service signs and resolves share tokens. The database is optional;
// without it links cannot be revoked but still expire.
type Service struct {
	secret []byte
	ttl    time.Duration
	db     *gorm.DB
	logger *logging.Logger
}

// NewService validates the configured secret and builds the service.
func NewService(cfg config.ShareConfig, db *gorm.DB, logger *logging.Logger) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New(errors.KindConfig, "share.new", "share secret is empty")
	}
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		db:     db,
		logger: logger,
	}, nil
}

// Create issues a share link for documentID.
func (s *Service) Create(documentID string) (*Link, error) {
	if documentID == "" {
		return nil, errors.New(errors.KindConfig, "share.create", "document id is empty")
	}

	now := time.Now()
	expires := now.Add(s.ttl)
	tokenID := uuid.NewString()
	claims := jwt.MapClaims{
		"doc_id": documentID,
		"jti":    tokenID,
		"iat":    now.Unix(),
		"exp":    expires.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, errors.Wrap(errors.KindPlatform, "share.create", "failed to sign token", err)
	}

	if s.db != nil {
		row := &storage.ShareLink{
			TokenID:    tokenID,
			DocumentID: documentID,
			CreatedAt:  now,
			ExpiresAt:  &expires,
		}
		if err := s.db.Create(row).Error; err != nil {
			return nil, errors.Wrap(errors.KindStorage, "share.create", "failed to record link", err)
		}
	}

	s.logger.InfoTag("SHARE", "issued link %s for document %s", tokenID, documentID)
	return &Link{
		Token:      token,
		TokenID:    tokenID,
		DocumentID: documentID,
		ExpiresAt:  expires,
	}, nil
}

// Resolve verifies a token and returns the document id it grants.
// Expired, forged and revoked tokens all fail.
func (s *Service) Resolve(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "share.resolve", "token rejected", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New(errors.KindTransport, "share.resolve", "invalid claims")
	}
	docID, ok := claims["doc_id"].(string)
	if !ok || docID == "" {
		return "", errors.New(errors.KindTransport, "share.resolve", "missing doc_id claim")
	}

	if s.db != nil {
		tokenID, _ := claims["jti"].(string)
		var row storage.ShareLink
		err := s.db.Where("token_id = ?", tokenID).First(&row).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			return "", errors.New(errors.KindTransport, "share.resolve", "unknown link")
		case err != nil:
			return "", errors.Wrap(errors.KindStorage, "share.resolve", "link lookup failed", err)
		case row.RevokedAt != nil:
			return "", errors.New(errors.KindTransport, "share.resolve", "link revoked")
		}
	}
	return docID, nil
}

// Revoke invalidates an issued link by its token id.
func (s *Service) Revoke(tokenID string) error {
	if s.db == nil {
		return errors.New(errors.KindConfig, "share.revoke", "revocation needs a database")
	}
	now := time.Now()
	res := s.db.Model(&storage.ShareLink{}).
		Where("token_id = ? AND revoked_at IS NULL", tokenID).
		Update("revoked_at", &now)
	if res.Error != nil {
		return errors.Wrap(errors.KindStorage, "share.revoke", "revocation failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.KindTransport, "share.revoke", "unknown or already revoked link")
	}
	s.logger.InfoTag("SHARE", "revoked link %s", tokenID)
	return nil
}
