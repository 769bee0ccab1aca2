package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	req := require.New(t)

	req.Equal(KindAuthentication, KindOf(ErrUnknownIdentity))
	req.Equal(KindAuthorization, KindOf(ErrNotParticipant))
	req.Equal(KindPersistence, KindOf(Persistence("write failed", ErrMessageNotFound)))
	req.Equal(KindValidation, KindOf(Validation("bad payload", nil)))

	// Unclassified errors degrade to transient, never to something
	// more permanent.
	req.Equal(KindTransient, KindOf(ErrUserNotFound))
	req.Equal(KindTransient, KindOf(fmt.Errorf("socket closed")))
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	req := require.New(t)

	inner := Authorization("no access")
	outer := fmt.Errorf("handling action: %w", inner)
	req.Equal(KindAuthorization, KindOf(outer))
	req.True(IsKind(outer, KindAuthorization))
	req.False(IsKind(nil, KindAuthorization))
}

func TestUnwrap(t *testing.T) {
	req := require.New(t)

	cause := ErrConversationNotFound
	err := Persistence("load conversation", cause)
	req.True(Is(err, cause))
	req.Contains(err.Error(), "load conversation")
	req.Contains(err.Error(), cause.Error())
}
