package firestore

import (
	"context"
	"errors"

	"github.com/Yonad91/vital-events-sub002/internal/domain"
	pfirestore "github.com/Yonad91/vital-events-sub002/internal/platform/firestore"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
)

const userCollection = "users"

type userDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Role  string `firestore:"role"`
}

// UserRepository reads registry accounts keyed by Firebase UID.
type UserRepository struct {
	users *pfirestore.Collection[userDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{users: pfirestore.NewCollection[userDocument](provider, userCollection)}, nil
}

// FindByID loads the user by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: userID, Name: doc.Name, Email: doc.Email, Role: doc.Role}, nil
}
