package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/simlink/schema"
)

type contextKey int

const (
	sideKey contextKey = iota
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSide annotates the logger with the link side ("sim" or "display")
// unless the context already carries it.
func WithSide(ctx context.Context, side string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if side == "" {
		return log
	}
	if current, ok := ctx.Value(sideKey).(string); ok && current == side {
		return log
	}
	return log.With("side", side)
}

// ContextWithSide stores the side marker and a logger carrying it.
func ContextWithSide(ctx context.Context, side string) context.Context {
	if ctx == nil || side == "" {
		return ctx
	}
	log := WithSide(ctx, side)
	ctx = context.WithValue(ctx, sideKey, side)
	return pslog.ContextWithLogger(ctx, log)
}

// WithConn annotates the logger with the socket path.
func WithConn(log pslog.Logger, socketPath string) pslog.Logger {
	if socketPath != "" {
		log = log.With("socket", socketPath)
	}
	return log
}

// WithPeer annotates the logger with the peer process id when known.
func WithPeer(log pslog.Logger, pid int) pslog.Logger {
	if pid > 0 {
		log = log.With("peer_pid", pid)
	}
	return log
}

// WithRenderer annotates the logger with the active renderer name.
func WithRenderer(log pslog.Logger, name string) pslog.Logger {
	if name != "" {
		log = log.With("renderer", name)
	}
	return log
}

// Fatal logs a connection-ending error with its failure class.
func Fatal(log pslog.Logger, msg string, err error) {
	if err == nil {
		return
	}
	log.Error(msg, "class", string(schema.Classify(err)), "err", err)
}
