package repositories

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

const (
	userKeyPrefix     = "user:id:"
	identityKeyPrefix = "user:ident:"
	identityLCPrefix  = "user:identlc:"
)

// UserRepository persists the user accounts the relay resolves
// identity claims against. Two index keys point at each account: the
// verbatim identity and its lowercase form for the case-insensitive
// fallback.
type UserRepository struct {
	db *badger.DB
}

var _ contract.IdentityStore = (*UserRepository)(nil)

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// diskUser is the stored representation of a user account.
type diskUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Identity     string `json:"identity"`
	PasswordHash string `json:"passwordHash,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// CreateUser persists a user and its identity indexes. The identity
// must be unique, including its lowercase form.
func (u *UserRepository) CreateUser(ctx context.Context, user domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(fromUser(user))
	if err != nil {
		return errors.Persistence("marshal user", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		lcKey := []byte(identityLCPrefix + strings.ToLower(user.Identity))
		if _, err := txn.Get(lcKey); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set([]byte(userKeyPrefix+user.ID), data); err != nil {
			return err
		}
		if err := txn.Set([]byte(identityKeyPrefix+user.Identity), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(lcKey, []byte(user.ID))
	})
	switch {
	case err == nil, errors.Is(err, errors.ErrUserAlreadyExists):
		return err
	default:
		return errors.Persistence("create user", err)
	}
}

// FindUserByIdentity resolves a claim to a user. The verbatim identity
// wins; the lowercase index is only consulted when the exact form is
// unknown. A claim matching neither yields ErrUserNotFound.
func (u *UserRepository) FindUserByIdentity(ctx context.Context, claim string) (domain.User, error) {
	var du diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		id, err := resolveIdentity(txn, claim)
		if err != nil {
			return err
		}
		return readJSON(txn, userKeyPrefix+string(id), &du)
	})
	switch {
	case err == nil:
		return toUser(du), nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return domain.User{}, errors.ErrUserNotFound
	default:
		return domain.User{}, errors.Persistence("find user by identity", err)
	}
}

func (u *UserRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	var du diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, userKeyPrefix+id, &du)
	})
	switch {
	case err == nil:
		return toUser(du), nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return domain.User{}, errors.ErrUserNotFound
	default:
		return domain.User{}, errors.Persistence("get user", err)
	}
}

func resolveIdentity(txn *badger.Txn, claim string) ([]byte, error) {
	item, err := txn.Get([]byte(identityKeyPrefix + claim))
	if errors.Is(err, badger.ErrKeyNotFound) {
		item, err = txn.Get([]byte(identityLCPrefix + strings.ToLower(claim)))
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func readJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func fromUser(user domain.User) diskUser {
	return diskUser{
		ID:           user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		AvatarURL:    user.AvatarURL,
		Identity:     user.Identity,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.Unix(),
	}
}

func toUser(du diskUser) domain.User {
	return domain.User{
		ID:           du.ID,
		Username:     du.Username,
		DisplayName:  du.DisplayName,
		AvatarURL:    du.AvatarURL,
		Identity:     du.Identity,
		PasswordHash: du.PasswordHash,
		CreatedAt:    time.Unix(du.CreatedAt, 0).UTC(),
	}
}
