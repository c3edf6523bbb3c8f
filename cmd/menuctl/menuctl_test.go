package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/dailymenu/internal/auth"
)

const seedFile = "../../internal/seed/testdata/activities.json"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedIsIdempotent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "menu.db")

	out, err := run(t, "--db", db, "seed", seedFile)
	require.NoError(t, err)
	require.Equal(t, "seeded 2 new activities\n", out)

	out, err = run(t, "--db", db, "seed", seedFile)
	require.NoError(t, err)
	require.Equal(t, "seeded 0 new activities\n", out)

	_, err = run(t, "--db", db, "seed")
	require.Error(t, err)
}

func TestImportSkipsKnownTitles(t *testing.T) {
	db := filepath.Join(t.TempDir(), "menu.db")

	out, err := run(t, "--db", db, "import", "testdata/answer.txt")
	require.NoError(t, err)
	require.Equal(t, "imported \"Stretch by the window\" (4 min, starter)\n", out)

	out, err = run(t, "--db", db, "import", "testdata/answer.txt")
	require.NoError(t, err)
	require.Equal(t, "skipped \"Stretch by the window\": already in the catalog\n", out)

	_, err = run(t, "--db", db, "import", "testdata/missing.txt")
	require.Error(t, err)
}

func TestSuggestFiltersCatalog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "menu.db")
	_, err := run(t, "--db", db, "seed", seedFile)
	require.NoError(t, err)

	out, err := run(t, "--db", db, "suggest", "--window", "short", "--energy", "low", "--context", "solo")
	require.NoError(t, err)
	require.Contains(t, out, "Make a cup of tea")
	require.NotContains(t, out, "Walk around the block")

	out, err = run(t, "--db", db, "suggest", "--window", "long")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "nothing on the menu"))

	_, err = run(t, "--db", db, "suggest", "--window", "forever")
	require.Error(t, err)

	_, err = run(t, "--db", db, "suggest", "--energy", "hyper")
	require.Error(t, err)
}

func TestTokenCanBeVerified(t *testing.T) {
	t.Setenv("JWT_SECRET", "menuctl-test")
	t.Setenv("JWT_ISSUER", "menuctl")

	out, err := run(t, "token", "user-1", "--scopes", auth.ScopeMenuRead, "--ttl", "10m")
	require.NoError(t, err)

	claims, err := auth.Parse(strings.TrimSpace(out), auth.Config{Secret: "menuctl-test", Issuer: "menuctl"})
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopeMenuRead))
	require.False(t, claims.HasScope(auth.ScopeSyncWrite))
	require.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt, time.Minute)
}
