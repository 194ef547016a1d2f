package memrepo

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/users"
)

var _ users.UserRepo = (*InMemoryUserRepo)(nil)

// InMemoryUserRepo is a thread-safe in-memory identity store. Values are copied on the way in
// and out so callers never share a *users.User with the repo.
type InMemoryUserRepo struct {
	users    map[string]users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewInMemoryUserRepo() *InMemoryUserRepo {
	return &InMemoryUserRepo{
		users:    make(map[string]users.User),
		emailIds: make(map[string]string),
	}
}

// Upsert stores user, assigning an ID when it has none. A different user may not claim an
// email that is already registered.
func (ur *InMemoryUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user.Email = users.NormaliseEmail(user.Email)
	if existingID, ok := ur.emailIds[user.Email]; ok && existingID != user.ID {
		return apperrors.ErrUserExists
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if previous, ok := ur.users[user.ID]; ok && previous.Email != user.Email {
		delete(ur.emailIds, previous.Email)
	}
	ur.users[user.ID] = *user
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *InMemoryUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[users.NormaliseEmail(email)]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	u := ur.users[id]
	return &u, nil
}

func (ur *InMemoryUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return &u, nil
}

// List returns a page of users ordered by join date, plus the total count.
func (ur *InMemoryUserRepo) List(offset, limit int) ([]*users.User, int, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		u := v
		userList = append(userList, &u)
	}
	sort.Slice(userList, func(i, j int) bool {
		if userList[i].DateJoined.Equal(userList[j].DateJoined) {
			return userList[i].ID < userList[j].ID
		}
		return userList[i].DateJoined.Before(userList[j].DateJoined)
	})

	total := len(userList)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*users.User{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return userList[offset:end], total, nil
}

func (ur *InMemoryUserRepo) SetStatus(id string, status users.AccountStatus) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.Status = status
	ur.users[id] = u
	return nil
}

func (ur *InMemoryUserRepo) RecordLogin(id string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.LastLogin = at
	ur.users[id] = u
	return nil
}
