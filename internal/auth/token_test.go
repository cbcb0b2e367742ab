package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)

	token, exp, err := iss.Issue(Identity{UserID: 42, Email: "staff@clinic.test", ClinicPanel: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 42, Email: "staff@clinic.test", ClinicPanel: true}, id)
}

func TestVerifyRejects(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	token, _, err := iss.Issue(Identity{UserID: 7})
	require.NoError(t, err)

	other := NewIssuer("different", time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	late := NewIssuer("s3cret", time.Hour)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = late.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: 3})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), id.UserID)
}
