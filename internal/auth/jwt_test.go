package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndValidateOperatorJWT(t *testing.T) {
	secret := []byte("test-secret")

	token, err := SignOperatorJWT("op-1", []string{"admin"}, secret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateOperatorJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}

func TestValidateOperatorJWT_WrongSecret(t *testing.T) {
	token, err := SignOperatorJWT("op-1", []string{"viewer"}, []byte("secret-a"), time.Hour)
	require.NoError(t, err)

	_, err = ValidateOperatorJWT(token, []byte("secret-b"))
	assert.Error(t, err)
}

func TestValidateOperatorJWT_Expired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := SignOperatorJWT("op-1", []string{"admin"}, secret, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateOperatorJWT(token, secret)
	assert.Error(t, err)
}

func TestValidateOperatorJWT_Garbage(t *testing.T) {
	_, err := ValidateOperatorJWT("not-a-token", []byte("test-secret"))
	assert.Error(t, err)
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, RoleAdmin.HasPermission(RoleViewer))
	assert.True(t, RoleAdmin.HasPermission(RoleAdmin))
	assert.True(t, RoleViewer.HasPermission(RoleViewer))
	assert.False(t, RoleViewer.HasPermission(RoleAdmin))

	assert.True(t, Role("admin").IsValid())
	assert.True(t, Role("viewer").IsValid())
	assert.False(t, Role("root").IsValid())
}
