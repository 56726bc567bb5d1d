package service

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"wellping/internal/config"
	"wellping/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or access code")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// AuthService handles participant authentication
type AuthService struct {
	accessCode  string
	jwtSecret   []byte
	tokenTTL    time.Duration
	studyID     string
	ignoreLogin bool
	now         func() time.Time
	log         *zap.Logger
}

// NewAuthService creates a new auth service. debug.IgnoreLogin skips the
// access code check.
func NewAuthService(auth config.Auth, debug config.Debug, studyID string, logger *zap.Logger) *AuthService {
	if debug.IgnoreLogin {
		logger.Warn("Login check is disabled")
	}
	return &AuthService{
		accessCode:  auth.AccessCode,
		jwtSecret:   []byte(auth.JWTSecret),
		tokenTTL:    auth.TokenTTL,
		studyID:     studyID,
		ignoreLogin: debug.IgnoreLogin,
		now:         time.Now,
		log:         logger,
	}
}

// Login checks the study access code and returns a participant token
func (s *AuthService) Login(req model.LoginRequest) (*model.LoginResponse, error) {
	if req.Username == "" {
		return nil, ErrInvalidCredentials
	}
	if !s.ignoreLogin && subtle.ConstantTimeCompare([]byte(req.AccessCode), []byte(s.accessCode)) != 1 {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &model.ParticipantClaims{
		Username: req.Username,
		StudyID:  s.studyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	s.log.Info("Participant logged in", zap.String("username", req.Username))
	return &model.LoginResponse{
		Token:     tokenString,
		Username:  req.Username,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// ValidateToken validates a participant JWT and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*model.ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ParticipantClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.ParticipantClaims)
	if !ok || !token.Valid || claims.StudyID != s.studyID {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
