package service

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/models"
	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

// AuthConfig defines how access tokens issued upstream are verified.
type AuthConfig struct {
	AccessTokenSecret string
	Issuer            string
	Audience          []string
}

// AuthService verifies bearer tokens. Tokens are issued by the upstream API;
// the gateway only checks them and derives the caller's principal.
type AuthService struct {
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{logger: logger, config: config}
}

// ValidateToken parses and validates a JWT access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	for _, aud := range s.config.Audience {
		opts = append(opts, jwt.WithAudience(aud))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Authenticate validates tokenString and returns the caller it identifies.
// The raw token is kept on the principal so upstream calls can forward it.
func (s *AuthService) Authenticate(tokenString string) (*models.Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	role, ok := models.ParseRole(string(claims.Role))
	if !ok {
		s.logger.Warn("token carries unknown role", zap.String("role", string(claims.Role)), zap.String("user_id", claims.UserID))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("unknown role %q", claims.Role))
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject")
	}
	if role.InstitutionBound() && claims.InstitutionID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no institution for an institution-bound role")
	}
	return &models.Principal{
		UserID:        userID,
		Role:          role,
		Email:         claims.Email,
		FullName:      claims.FullName,
		InstitutionID: claims.InstitutionID,
		Token:         tokenString,
	}, nil
}
