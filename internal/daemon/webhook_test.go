package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)

	assert.True(t, ValidateSignature(payload, sign(payload, "s3cret"), "s3cret"))
	assert.False(t, ValidateSignature(payload, sign(payload, "wrong"), "s3cret"))
	assert.False(t, ValidateSignature(payload, "", "s3cret"))
	// No secret configured disables validation.
	assert.True(t, ValidateSignature(payload, "", ""))
}

func TestParsePushUnionsChangedPaths(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"before": "aaa",
		"after": "bbb",
		"commits": [
			{"id": "c1", "added": ["docs/index.rst"], "modified": ["src/lib.rs"]},
			{"id": "c2", "modified": ["docs/index.rst", "docs/api.rst"], "removed": ["docs/old.rst"]}
		]
	}`)

	push, err := ParsePush(body)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", push.Ref)
	assert.Equal(t, "aaa", push.Before)
	assert.ElementsMatch(t,
		[]string{"docs/index.rst", "src/lib.rs", "docs/api.rst", "docs/old.rst"},
		push.ChangedPaths)
}

func TestParsePushTagHasNoPaths(t *testing.T) {
	push, err := ParsePush([]byte(`{"ref": "refs/tags/concrete-core-1.4.0", "after": "ccc"}`))
	require.NoError(t, err)
	assert.Equal(t, "refs/tags/concrete-core-1.4.0", push.Ref)
	assert.Empty(t, push.ChangedPaths)
}

func TestParsePushRejectsDeletionsAndGarbage(t *testing.T) {
	_, err := ParsePush([]byte(`{"ref": "refs/heads/gone", "deleted": true}`))
	require.Error(t, err)

	_, err = ParsePush([]byte(`{}`))
	require.Error(t, err)

	_, err = ParsePush([]byte(`not json`))
	require.Error(t, err)
}
