package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyRef        = "ref"
	KeyVersion    = "version"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyBucket     = "bucket"
	KeyPrefix     = "prefix"
	KeyArtifact   = "artifact"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Bucket(b string) slog.Attr       { return slog.String(KeyBucket, b) }
func Prefix(p string) slog.Attr       { return slog.String(KeyPrefix, p) }
func Artifact(a string) slog.Attr     { return slog.String(KeyArtifact, a) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
