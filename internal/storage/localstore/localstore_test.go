package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "orderHistory")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "orderHistory", `[{"id":"o1"}]`))
	v, ok, err := s.Get(ctx, "orderHistory")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"o1"}]`, v)

	require.NoError(t, s.Set(ctx, "orderHistory", `[]`))
	v, _, err = s.Get(ctx, "orderHistory")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)

	require.NoError(t, s.Delete(ctx, "orderHistory"))
	_, ok, err = s.Get(ctx, "orderHistory")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "missing"))
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	testStore(t, s)

	require.NoError(t, s.Set(ctx, "orderHistory", "persisted"))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "orderHistory")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", v)
}

func TestPrefixed(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	alice := Prefixed(base, "c1")
	bob := Prefixed(base, "c2")

	testStore(t, alice)

	require.NoError(t, alice.Set(ctx, "orderHistory", "alice"))
	require.NoError(t, bob.Set(ctx, "orderHistory", "bob"))

	v, _, err := alice.Get(ctx, "orderHistory")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	v, ok, err := base.Get(ctx, "c2:orderHistory")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bob", v)

	require.NoError(t, alice.Close())
	_, _, err = base.Get(ctx, "c1:orderHistory")
	require.NoError(t, err, "closing a prefixed view keeps the base open")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: DriverRedis})
	require.Error(t, err)

	_, err = Open(ctx, Config{Driver: "etcd"})
	require.Error(t, err)
}
