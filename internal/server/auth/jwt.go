// Package auth carries the caller identity on the transport. The server never
// authenticates users itself: it verifies a signed token minted by the
// provisioning side and turns its claims into a models.Identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims plus the pre-resolved identity.
type Claims struct {
	jwt.RegisteredClaims
	ContextID              int      `json:"cid"`
	UserID                 int      `json:"uid"`
	GroupIDs               []int    `json:"gids,omitempty"`
	Modules                []string `json:"mods,omitempty"`
	FullSharedFolderAccess bool     `json:"shared,omitempty"`
	FullPublicFolderAccess bool     `json:"public,omitempty"`
}

// ClaimsFor is the inverse of Claims.Identity.
func ClaimsFor(id models.Identity) Claims {
	c := Claims{
		ContextID:              id.ContextID,
		UserID:                 id.UserID,
		GroupIDs:               append([]int(nil), id.GroupIDs...),
		FullSharedFolderAccess: id.Capabilities.FullSharedFolderAccess,
		FullPublicFolderAccess: id.Capabilities.FullPublicFolderAccess,
	}
	for _, m := range id.Modules.Modules() {
		if m != models.ModuleSystem {
			c.Modules = append(c.Modules, m.String())
		}
	}
	return c
}

// Identity converts the claims. Every user is entitled to the system module,
// which the root folders belong to.
func (c Claims) Identity() (models.Identity, error) {
	if c.ContextID <= 0 || c.UserID <= 0 {
		return models.Identity{}, common.ErrInvalidToken
	}
	mods := models.NewModuleSet(models.ModuleSystem)
	for _, name := range c.Modules {
		m, ok := models.ParseModule(name)
		if !ok {
			return models.Identity{}, fmt.Errorf("%w: unknown module %q", common.ErrInvalidToken, name)
		}
		mods = mods.With(m)
	}
	return models.Identity{
		ContextID: c.ContextID,
		UserID:    c.UserID,
		GroupIDs:  append([]int(nil), c.GroupIDs...),
		Modules:   mods,
		Capabilities: models.Capabilities{
			FullSharedFolderAccess: c.FullSharedFolderAccess,
			FullPublicFolderAccess: c.FullPublicFolderAccess,
		},
	}, nil
}

// GenerateToken signs an HS256 token for id.
func GenerateToken(id models.Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	claims := ClaimsFor(id)
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d/%d", id.ContextID, id.UserID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// IdentityFromToken verifies tokenString and returns its identity. An expired
// token yields common.ErrTokenExpired, any other failure
// common.ErrInvalidToken.
func IdentityFromToken(tokenString string, secretKey []byte) (models.Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, common.ErrTokenExpired
		}
		return models.Identity{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return models.Identity{}, common.ErrInvalidToken
	}

	return claims.Identity()
}
