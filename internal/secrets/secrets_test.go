package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

func writeSecret(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func TestResolve(t *testing.T) {
	t.Setenv("MEL_SMTP_PASSWORD", "hunter2")
	file := writeSecret(t, "from-file\n", 0o600)

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"literal", "plain", "plain", false},
		{"empty", "", "", false},
		{"dollar without braces stays literal", "pa$$word", "pa$$word", false},
		{"env", "${MEL_SMTP_PASSWORD}", "hunter2", false},
		{"env in text", "user:${MEL_SMTP_PASSWORD}@host", "user:hunter2@host", false},
		{"fallback", "${MEL_UNSET_VAR:-default}", "default", false},
		{"empty fallback", "${MEL_UNSET_VAR:-}", "", false},
		{"missing env", "${MEL_UNSET_VAR}", "", true},
		{"file", "file:" + file, "from-file", false},
		{"missing file", "file:" + filepath.Join(t.TempDir(), "nope"), "", true},
		{"directory", "file:" + t.TempDir(), "", true},
		{"empty path", "file:", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	got, err := ReadFile(writeSecret(t, "  spaced token \r\n", 0o400))
	require.NoError(t, err)
	assert.Equal(t, "  spaced token ", got, "only trailing newlines are trimmed")

	_, err = ReadFile(writeSecret(t, "\n", 0o600))
	require.Error(t, err)

	got, err = ReadFile(writeSecret(t, "readable", 0o644))
	require.NoError(t, err, "permissive files are accepted")
	assert.Equal(t, "readable", got)
}

func TestReadFile_TooLarge(t *testing.T) {
	t.Parallel()

	_, err := ReadFile(writeSecret(t, strings.Repeat("x", maxFileSize+1), 0o600))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "larger than 65536 bytes")
}

func TestResolveAll(t *testing.T) {
	t.Setenv("MEL_WEBHOOK_TOKEN", "tok")
	token := "${MEL_WEBHOOK_TOKEN}"
	literal := "plain"
	broken := "${MEL_UNSET_VAR}"
	empty := ""

	err := ResolveAll(map[string]*string{
		"mailer.webhook.token": &token,
		"mailer.smtp.password": &literal,
		"audit.mqtt.password":  &broken,
		"sentry.dsn":           &empty,
		"unused":               nil,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEL_UNSET_VAR")
	assert.NotContains(t, err.Error(), "tok")
	assert.Equal(t, "tok", token)
	assert.Equal(t, "plain", literal)
	assert.Equal(t, "${MEL_UNSET_VAR}", broken, "failed fields are left unchanged")
}
