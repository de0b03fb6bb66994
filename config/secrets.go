package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// UICfgFile is the secret-material file generated by `setup`.
const UICfgFile = "ui.cfg"

// DefaultSecretBits is the default strength of each generated secret.
const DefaultSecretBits = 256

// ErrSecretsExist is returned when the target secrets file already
// exists. Regeneration always requires deleting the file manually
// first; there is no overwrite path.
var ErrSecretsExist = errors.New("found existing secrets, delete the file to regenerate them")

// WriteUICfg generates the server secret material and writes it to
// `path` as key="value" lines: the session cookie domain plus three
// hex-encoded secrets of `bits` strength (bits/4 hex characters each).
func WriteUICfg(path, serverName string, bits int) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Wrap(ErrSecretsExist, path)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "stat secrets file")
	}

	if bits <= 0 {
		bits = DefaultSecretBits
	}

	generateSecret := func() (string, error) {
		raw := make([]byte, bits/8)
		if _, err := rand.Read(raw); err != nil {
			return "", errors.Wrap(err, "generate secret")
		}
		return hex.EncodeToString(raw), nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "SESSION_COOKIE_DOMAIN = %q\n", serverName)

	for _, key := range []string{"SECRET_KEY", "JWT_SECRET_KEY", "SECURITY_PASSWORD_SALT"} {
		value, err := generateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "%s = %q\n", key, value)
	}

	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0600), "write secrets file")
}
