package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestWriteUICfg(t *testing.T) {
	path := filepath.Join(t.TempDir(), UICfgFile)
	const bits = 256

	require.NoError(t, WriteUICfg(path, "meltano.example.com", bits))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 4)

	values := map[string]string{}
	for _, line := range lines {
		parts := strings.SplitN(line, " = ", 2)
		require.Lenf(t, parts, 2, "malformed line %q", line)
		require.True(t, strings.HasPrefix(parts[1], `"`))
		require.True(t, strings.HasSuffix(parts[1], `"`))
		values[parts[0]] = strings.Trim(parts[1], `"`)
	}

	require.Equal(t, "meltano.example.com", values["SESSION_COOKIE_DOMAIN"])

	for _, key := range []string{"SECRET_KEY", "JWT_SECRET_KEY", "SECURITY_PASSWORD_SALT"} {
		secret := values[key]
		require.Lenf(t, secret, bits/4, "%s has wrong length", key)
		_, err := hex.DecodeString(secret)
		require.NoErrorf(t, err, "%s is not hex", key)
	}
}

func TestWriteUICfg_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), UICfgFile)

	require.NoError(t, WriteUICfg(path, "first.example.com", DefaultSecretBits))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = WriteUICfg(path, "second.example.com", DefaultSecretBits)
	require.Error(t, err)
	require.Equal(t, ErrSecretsExist, errors.Cause(err))

	after, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	require.Equal(t, before, after, "existing secrets must stay byte-identical")
}

func TestWriteUICfg_SecretsAreUnique(t *testing.T) {
	path := filepath.Join(t.TempDir(), UICfgFile)
	require.NoError(t, WriteUICfg(path, "meltano.example.com", 128))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	seen := map[string]struct{}{}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n")[1:] {
		parts := strings.SplitN(line, " = ", 2)
		require.Len(t, parts, 2)
		_, dup := seen[parts[1]]
		require.False(t, dup, "secrets must not repeat")
		seen[parts[1]] = struct{}{}
	}
}
