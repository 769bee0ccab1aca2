package services

import (
	"context"
	"strings"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

type IAuthService interface {
	Authenticate(ctx context.Context, claim string) (domain.User, string, error)
}

// AuthService turns an identity claim into a resolved user plus a
// session token. Claims come in three shapes: a previously issued
// token, an opaque identity known to the user store, or
// "identity:password" for accounts carrying a stored hash. Every path
// ends in a store lookup, so a deactivated account cannot ride back in
// on an old token.
type AuthService struct {
	users  contract.IdentityStore
	tokens *auth.Tokens
}

func NewAuthService(users contract.IdentityStore, tokens *auth.Tokens) IAuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Authenticate(ctx context.Context, claim string) (domain.User, string, error) {
	identity := claim
	secret := ""
	viaToken := false

	// 1. A claim shaped like one of our session tokens must carry a
	// valid signature; its embedded identity then goes through the
	// same resolution as any other claim.
	if auth.LooksLikeToken(claim) {
		claims, err := s.tokens.ValidateToken(claim)
		if err != nil {
			return domain.User{}, "", errors.ErrUnknownIdentity
		}
		identity = claims.Identity
		viaToken = true
	} else if i := strings.IndexByte(claim, ':'); i >= 0 {
		identity, secret = claim[:i], claim[i+1:]
	}

	// 2. Resolve the identity against the user store.
	user, err := s.users.FindUserByIdentity(ctx, identity)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrUserNotFound):
		// Terminal for this claim, the connection may retry another
		return domain.User{}, "", errors.ErrUnknownIdentity
	default:
		// Store outage is retryable, not a verdict on the claim
		return domain.User{}, "", errors.Transient("identity store unavailable", err)
	}

	// 3. A stored password hash must be matched by the inline secret.
	// A token skips this, it already proved a full authentication.
	if !viaToken {
		if err := checkPassword(user, secret); err != nil {
			return domain.User{}, "", err
		}
	}

	// 4. Issue the session token used for reconnects.
	token, err := s.tokens.GenerateToken(user.ID, user.Identity)
	if err != nil {
		return domain.User{}, "", errors.Transient("token generation failed", err)
	}
	return user, token, nil
}

// checkPassword enforces the pairing between stored hashes and inline
// secrets. Every mismatch collapses into the same unknown-identity
// verdict, which account shapes exist is not revealed.
func checkPassword(user domain.User, secret string) error {
	if user.PasswordHash == "" {
		if secret != "" {
			return errors.ErrUnknownIdentity
		}
		return nil
	}
	if secret == "" {
		return errors.ErrUnknownIdentity
	}
	match, err := auth.ComparePassword(secret, user.PasswordHash)
	if err != nil || !match {
		return errors.ErrUnknownIdentity
	}
	return nil
}
