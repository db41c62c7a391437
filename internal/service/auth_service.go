package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/pkg/jwt"
	"supplychain-ledger/pkg/logger"
	"supplychain-ledger/pkg/validator"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required"`
}

type LoginResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	ExpiresIn   int                `json:"expires_in"`
	User        model.UserResponse `json:"user"`
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*model.UserResponse, error)
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	Resolve(ctx context.Context, token string) (model.Principal, error)
}

type authService struct {
	userRepo repository.UserRepository
	tokens   *jwt.Manager
	log      *logger.Logger
	clock    func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, tokens *jwt.Manager, log *logger.Logger) AuthService {
	if log == nil {
		log = logger.Nop()
	}
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		log:      log.Named("auth"),
		clock:    time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.UserResponse, error) {
	in.Email = normalizeEmail(in.Email)
	if errs := validator.ValidateStruct(in); len(errs) > 0 {
		return nil, newError(KindInvalidInput, validator.Summary(errs), nil)
	}
	role := model.ParseRole(in.Role)
	if role == model.RoleUnknown {
		return nil, newError(KindInvalidInput, "unknown role "+in.Role, nil)
	}

	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		Role:         role,
		IsActive:     true,
		RegisteredAt: s.clock().UTC(),
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, newError(KindInvalidInput, "password cannot be used", err)
	}
	user.CreatedBy = in.Email
	user.UpdatedBy = in.Email

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindDuplicateID, "email already registered", err)
		}
		return nil, storageError(err, "")
	}

	s.log.Info().Str("identity", user.Email).Str("role", role.String()).Msg("user registered")
	resp := user.ToResponse()
	return &resp, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindUnauthenticated, "incorrect email or password", nil)
		}
		return nil, storageError(err, "")
	}
	if !user.IsActive || !user.CheckPassword(password) {
		return nil, newError(KindUnauthenticated, "incorrect email or password", nil)
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, newError(KindStorageUnavailable, "", err)
	}
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		User:        user.ToResponse(),
	}, nil
}

// Resolve turns a bearer token into a Principal. The user must still exist and be active.
func (s *authService) Resolve(ctx context.Context, token string) (model.Principal, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return model.Principal{}, newError(KindUnauthenticated, "invalid or expired token", err)
	}

	user, err := s.userRepo.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Principal{}, newError(KindUnauthenticated, "user no longer exists", nil)
		}
		return model.Principal{}, storageError(err, "")
	}
	if !user.IsActive {
		return model.Principal{}, newError(KindUnauthenticated, "user account is inactive", nil)
	}

	principal := user.Principal()
	if principal.Role == model.RoleUnknown {
		return model.Principal{}, newError(KindUnauthenticated, "user has no valid role", nil)
	}
	return principal, nil
}
