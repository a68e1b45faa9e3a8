package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = models.Identity{
	ContextID: 1,
	UserID:    5,
	GroupIDs:  []int{41, 42},
	Modules:   models.NewModuleSet(models.ModuleContact, models.ModuleCalendar, models.ModuleSystem),
	Capabilities: models.Capabilities{
		FullSharedFolderAccess: true,
	},
}

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	tok, err := GenerateToken(alice, secret, time.Hour)
	require.NoError(t, err)

	got, err := IdentityFromToken(tok, secret)
	require.NoError(t, err)
	if diff := cmp.Diff(alice, got); diff != "" {
		t.Errorf("identity mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentityFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken(alice, secret, -1*time.Second)
	require.NoError(t, err)

	_, err = IdentityFromToken(tok, secret)
	assert.True(t, errors.Is(err, common.ErrTokenExpired), "got %v", err)
}

func TestIdentityFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(alice, []byte("right-secret"), time.Hour)
	require.NoError(t, err)

	_, err = IdentityFromToken(tok, []byte("wrong-secret"))
	assert.True(t, errors.Is(err, common.ErrInvalidToken), "got %v", err)
}

func TestIdentityFromToken_Garbage(t *testing.T) {
	t.Parallel()

	_, err := IdentityFromToken("not-a-jwt", []byte("k"))
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestIdentityFromToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	claims := ClaimsFor(alice)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = IdentityFromToken(tok, []byte("k"))
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestClaimsIdentity_AlwaysGrantsSystemModule(t *testing.T) {
	t.Parallel()

	id, err := Claims{ContextID: 1, UserID: 2, Modules: []string{"contact"}}.Identity()
	require.NoError(t, err)
	assert.True(t, id.Modules.Has(models.ModuleSystem))
	assert.True(t, id.Modules.Has(models.ModuleContact))
	assert.False(t, id.Modules.Has(models.ModuleCalendar))
}

func TestClaimsIdentity_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Claims{ContextID: 0, UserID: 2}.Identity()
	assert.True(t, errors.Is(err, common.ErrInvalidToken))

	_, err = Claims{ContextID: 1, UserID: 2, Modules: []string{"fax"}}.Identity()
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), alice)
	got, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, alice.UserID, got.UserID)
}
