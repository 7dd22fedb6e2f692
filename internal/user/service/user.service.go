package service

import (
	"context"
	"strings"
	"time"

	"appsync/internal/user/model"
	"appsync/internal/user/repository"
	"appsync/pkg/apperr"
	"appsync/pkg/logger"
	"appsync/pkg/timex"
	"appsync/pkg/token"
	"appsync/pkg/validate"

	"golang.org/x/crypto/bcrypt"
)

var errBadCredentials = apperr.Unauthorized("invalid username or password")

type UserService struct {
	Repo   repository.Repository
	Tokens *token.Manager
	Now    func() time.Time
	Cost   int
}

func NewUserService(repo repository.Repository, tokens *token.Manager) *UserService {
	return &UserService{Repo: repo, Tokens: tokens, Now: timex.Now, Cost: bcrypt.DefaultCost}
}

func (s *UserService) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to hash password", err)
	}
	return string(b), nil
}

func (s *UserService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	username, email := req.Username, req.Email

	if u, err := s.Repo.GetByUsername(ctx, username); err != nil {
		return nil, err
	} else if u != nil {
		return nil, apperr.Conflict("username already exists")
	}
	if u, err := s.Repo.GetByEmail(ctx, email); err != nil {
		return nil, err
	} else if u != nil {
		return nil, apperr.Conflict("email already in use")
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.Repo.Create(ctx, username, email, hash, s.Now())
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("New user registered: %s", username)
	return u, nil
}

func (s *UserService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, apperr.Validation("missing username or password")
	}
	u, err := s.Repo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}

	tok, err := s.Tokens.Generate(u.ID, u.Username)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to issue token", err)
	}
	logger.Sugar.Infof("User logged in: %s", u.Username)
	return &model.LoginResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Tokens.TTL().Seconds()),
		User:        *u,
	}, nil
}

func (s *UserService) Profile(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, req model.UpdateProfileRequest) (*model.User, error) {
	if !req.Email.Present() && !req.Password.Present() {
		return nil, apperr.Validation("no fields to update")
	}
	u, err := s.Profile(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email.Present() {
		email := strings.TrimSpace(req.Email.Value)
		if err := validate.Var("email", email, model.EmailRule); err != nil {
			return nil, err
		}
		other, err := s.Repo.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, apperr.Conflict("email already in use")
		}
		u.Email = email
	}
	if req.Password.Present() {
		if err := validate.Var("password", req.Password.Value, model.PasswordRule); err != nil {
			return nil, err
		}
		if u.PasswordHash, err = s.hash(req.Password.Value); err != nil {
			return nil, err
		}
	}
	u.UpdatedAt = s.Now()

	if err := s.Repo.Update(ctx, *u); err != nil {
		return nil, err
	}
	logger.Sugar.Infof("User profile updated: %s", u.Username)
	return u, nil
}

// Logout only records the event; tokens are stateless and expire on their own.
func (s *UserService) Logout(ctx context.Context, id int64) error {
	u, err := s.Profile(ctx, id)
	if err != nil {
		return err
	}
	logger.Sugar.Infof("User logged out: %s", u.Username)
	return nil
}

// DeleteAccount removes the user and all of their records.
func (s *UserService) DeleteAccount(ctx context.Context, id int64) error {
	u, err := s.Profile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Sugar.Infof("User account deleted: %s", u.Username)
	return nil
}

// Exists backs the auth middleware's check that a token's user is still there.
func (s *UserService) Exists(ctx context.Context, id int64) (bool, error) {
	u, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}
