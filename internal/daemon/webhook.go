package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// pushPayload is the subset of a forge push webhook the daemon needs.
type pushPayload struct {
	Ref     string       `json:"ref"`
	Before  string       `json:"before"`
	After   string       `json:"after"`
	Deleted bool         `json:"deleted"`
	Commits []pushCommit `json:"commits"`
}

type pushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Push is a validated, normalized push notification.
type Push struct {
	Ref          string
	Before       string
	After        string
	ChangedPaths []string
}

// ValidateSignature checks a GitHub/Forgejo-style HMAC-SHA256
// signature ("sha256=<hex>"). An empty secret disables validation.
func ValidateSignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	expected := strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	calc := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(calc))
}

// ParsePush decodes a push webhook body into a normalized Push.
// Changed paths are the union of added, modified and removed files
// across all commits in the push, deduplicated.
func ParsePush(body []byte) (*Push, error) {
	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode push payload: %w", err)
	}
	if payload.Ref == "" {
		return nil, fmt.Errorf("push payload has no ref")
	}
	if payload.Deleted {
		return nil, fmt.Errorf("ref deletion push for %s", payload.Ref)
	}

	seen := make(map[string]struct{})
	var paths []string
	addAll := func(files []string) {
		for _, f := range files {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			paths = append(paths, f)
		}
	}
	for _, c := range payload.Commits {
		addAll(c.Added)
		addAll(c.Modified)
		addAll(c.Removed)
	}

	return &Push{
		Ref:          payload.Ref,
		Before:       payload.Before,
		After:        payload.After,
		ChangedPaths: paths,
	}, nil
}
