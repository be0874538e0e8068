package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nexus-chat/internal/apperr"
	"nexus-chat/internal/entity"
	"nexus-chat/internal/respond"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer      = "nexus-chat"
	searchLimit = 10
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	repo      Repository
	jwtSecret string
	tokenTTL  time.Duration
	log       *slog.Logger
	now       func() time.Time
}

type MyJWTClaims struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo Repository, secret string, tokenTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		tokenTTL:  tokenTTL,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*entity.Profile, error) {
	if err := respond.Validate(req); err != nil {
		return nil, err
	}
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := entity.User{
		ID:         uuid.New(),
		Username:   req.Username,
		FullName:   strings.TrimSpace(req.FullName),
		Email:      strings.ToLower(req.Email),
		Phone:      req.Phone,
		ProfileURL: entity.DefaultAvatarURL,
		LastSeen:   s.now(),
	}
	if err := s.repo.CreateUser(ctx, u, string(hashedPwd)); err != nil {
		return nil, err
	}
	s.log.Info("User registered", "user_id", u.ID, "username", u.Username)
	return u.Profile(), nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if err := respond.Validate(req); err != nil {
		return nil, err
	}
	u, hash, err := s.repo.FindCredentials(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.tokenTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (uuid.UUID, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return uuid.Nil, "", err
	}
	if !token.Valid || claims.ID == uuid.Nil {
		return uuid.Nil, "", ErrInvalidCredentials
	}

	return claims.ID, claims.Username, nil
}

// Me returns the signed-in user's own record, contact details included.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	u, err := s.repo.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]*entity.Profile, error) {
	users, err := s.repo.SearchUsers(ctx, strings.TrimSpace(query), searchLimit)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u entity.User, _ int) *entity.Profile { return u.Profile() }), nil
}
