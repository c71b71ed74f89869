package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserSafeMessageHidesPersistenceDetail(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrPersistence, errors.New("dial tcp 10.0.0.3:5432: connection refused"))
	require.Equal(t, "internal error, please retry later", UserSafeMessage(err))
	require.Equal(t, "internal error, please retry later", UserSafeMessage(errors.New("boom")))
}

func TestUserSafeMessageKeepsDomainErrors(t *testing.T) {
	err := fmt.Errorf("%w: product PRD-1 has 2 available", ErrInsufficientStock)
	require.Equal(t, err.Error(), UserSafeMessage(err))
	require.True(t, IsTaxonomy(err))
	require.False(t, IsTaxonomy(errors.New("plain")))
}

func TestActorFromContextDefaultsToSystem(t *testing.T) {
	ctx := ContextWithActor(t.Context(), "")
	require.Equal(t, SystemActor, ActorFromContext(ctx))
	require.Equal(t, "alice", ActorFromContext(ContextWithActor(t.Context(), "alice")))
}
