package logger

import "log/slog"

// Field keys shared by every service. Log aggregation queries depend on these
// names, so keep them stable.
const (
	KeyRequestID = "request_id"
	KeyTraceID   = "trace_id"
	KeyService   = "service"
	KeyMethod    = "method"
	KeyRoute     = "path"
	KeyStatus    = "status"
	KeyClientIP  = "client_ip"
	KeyUsername  = "username"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"

	KeyFile      = "file"
	KeyFiles     = "files"
	KeyMtime     = "mtime"
	KeyBytes     = "bytes"
	KeyWaitMs    = "wait_ms"
	KeyEntityID  = "entity_id"
	KeyClusterID = "cluster_id"
	KeyUserID    = "user_id"
	KeyCount     = "count"
	KeyBackend   = "backend"
)

// Err returns a slog.Attr for an error; nil errors produce an empty attr
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// File returns a slog.Attr for a snapshot or lock file path.
func File(path string) slog.Attr {
	return slog.String(KeyFile, path)
}

// Files returns a slog.Attr for a set of lock paths.
func Files(paths []string) slog.Attr {
	return slog.Any(KeyFiles, paths)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// EntityID returns a slog.Attr for an entity id.
func EntityID(id string) slog.Attr {
	return slog.String(KeyEntityID, id)
}

// ClusterID returns a slog.Attr for a cluster id.
func ClusterID(id string) slog.Attr {
	return slog.String(KeyClusterID, id)
}

// UserID returns a slog.Attr for a user id.
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}
