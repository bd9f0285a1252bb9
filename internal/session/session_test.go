package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(FileStore{Path: filepath.Join(t.TempDir(), "nope", "credentials.json")})
	require.NoError(t, err)
	assert.Equal(t, Presence{}, s.Presence())
}

func TestLoginPersistsAndReloads(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "credentials.json")}
	s := New(Credentials{}, store)

	require.NoError(t, s.Login(" access-1 ", "refresh-1"))
	require.NoError(t, s.SetHousehold("hh-7"))
	require.NoError(t, s.SetAccess("access-2"))

	reloaded, err := Open(store)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Token: "access-2", RefreshToken: "refresh-1", HouseholdID: "hh-7"}, reloaded.Credentials())
	assert.Equal(t, Presence{HasToken: true, HasRefreshToken: true, HasHouseholdID: true}, reloaded.Presence())

	require.NoError(t, reloaded.Clear())
	cleared, err := Open(store)
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, cleared.Credentials())
}

func TestAccessExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	s := New(Credentials{Token: tok}, nil)
	got, ok := s.AccessExpiry()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = New(Credentials{Token: "not-a-jwt"}, nil).AccessExpiry()
	assert.False(t, ok)
}
