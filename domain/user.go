package domain

import "time"

// User is an account owned by the surrounding platform. The relay
// never creates users during authentication, it only resolves them
// from an identity claim.
type User struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	Identity    string // external identity the user authenticates with
	// PasswordHash empty means the identity authenticates on its own.
	PasswordHash string
	CreatedAt    time.Time
}
