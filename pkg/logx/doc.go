// Package logx wraps zerolog behind a small Field-based API so the rest of
// the codebase never imports zerolog directly. Loggers handed out by the
// Service stay live across config reloads (level and sink changes).
package logx
