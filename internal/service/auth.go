package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wb-go/wbf/ginext"

	"coursebook/internal/dto"
	"coursebook/internal/model"
	"coursebook/internal/repo"
	"coursebook/pkg/validator"
)

func (s *service) SignUp(ctx *ginext.Context) {
	var req dto.SignUpRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to hash password")
		dto.InternalServerError(ctx)
		return
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Roles:        []string{model.RoleUser},
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			dto.BadResponseError(ctx, dto.EmailTaken, "A user with this email already exists")
			return
		}
		s.log.Error().Err(err).Msg("failed to create user")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")

	dto.SuccessCreatedResponse(ctx, dto.AuthResponse{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  user.Roles,
	})
}

func (s *service) Login(ctx *ginext.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			dto.BadResponseError(ctx, dto.InvalidCredentials, "Invalid email or password")
			return
		}
		s.log.Error().Err(err).Msg("failed to get user")
		dto.InternalServerError(ctx)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		dto.BadResponseError(ctx, dto.InvalidCredentials, "Invalid email or password")
		return
	}

	token, err := s.generateJWT(user)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sign token")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.AuthResponse{
		UserID:    user.ID,
		Email:     user.Email,
		Roles:     user.Roles,
		Token:     token,
		ExpiresIn: int(s.cfg.TokenTTL.Seconds()),
	})
}

func (s *service) generateJWT(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"roles": user.Roles,
		"exp":   now.Add(s.cfg.TokenTTL).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWTSecret)
}
