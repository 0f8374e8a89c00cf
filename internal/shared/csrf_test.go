package shared_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worksite-pm/worksite/internal/shared"
)

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newSessionManager(t)
	csrf := shared.NewCSRFManager("secret")
	ctx := context.Background()

	sess := roundTrip(t, sm, nil)
	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, csrf.VerifyToken(ctx, sess, token))
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), shared.ErrCSRFTokenMissing)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, token+"x"), shared.ErrCSRFTokenMismatch)
}

func TestCSRFTokenBoundToSessionID(t *testing.T) {
	sm, _ := newSessionManager(t)
	csrf := shared.NewCSRFManager("secret")
	ctx := context.Background()

	sess := roundTrip(t, sm, nil)
	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)

	sm.Renew(sess)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, token), shared.ErrCSRFTokenMismatch)

	fresh, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.NotEqual(t, token, fresh)
	require.NoError(t, csrf.VerifyToken(ctx, sess, fresh))

	csrf.Reset(sess)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, fresh), shared.ErrCSRFTokenMissing)
}

func TestCSRFTokenRejectsOtherSecret(t *testing.T) {
	sm, _ := newSessionManager(t)
	ctx := context.Background()

	sess := roundTrip(t, sm, nil)
	token, err := shared.NewCSRFManager("one").EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.ErrorIs(t, shared.NewCSRFManager("two").VerifyToken(ctx, sess, token), shared.ErrCSRFTokenMismatch)
}
