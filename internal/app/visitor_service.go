package app

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeankeim/voice-brainstorm/internal/model"
	"github.com/jeankeim/voice-brainstorm/internal/pkg/visitortoken"
	"github.com/jeankeim/voice-brainstorm/internal/repository"
)

// VisitorService mints anonymous identities and resolves tokens back to them.
type VisitorService struct {
	userRepo   *repository.UserRepository
	jwtSecret  string
	expiration time.Duration
}

func NewVisitorService(userRepo *repository.UserRepository, jwtSecret string, expiration time.Duration) *VisitorService {
	return &VisitorService{
		userRepo:   userRepo,
		jwtSecret:  jwtSecret,
		expiration: expiration,
	}
}

type VisitorResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register creates a fresh anonymous visitor and returns its token.
func (s *VisitorService) Register() (*VisitorResult, error) {
	user := &model.User{
		ID:         uuid.NewString(),
		LastActive: time.Now(),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	token, err := visitortoken.Generate(s.jwtSecret, s.expiration, user.ID)
	if err != nil {
		return nil, err
	}
	return &VisitorResult{Token: token, User: user}, nil
}

// Resolve validates the token and returns the visitor it names. A valid token
// whose user row disappeared gets a fresh row under the same id, so the token
// stays usable.
func (s *VisitorService) Resolve(token string) (*model.User, error) {
	claims, err := visitortoken.Parse(s.jwtSecret, token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(claims.VisitorID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &model.User{
			ID:         claims.VisitorID,
			LastActive: time.Now(),
		}
		if err := s.userRepo.Create(user); err != nil {
			return nil, err
		}
		return user, nil
	}

	_ = s.userRepo.TouchLastActive(user.ID)
	return user, nil
}
