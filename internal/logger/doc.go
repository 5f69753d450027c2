// Package logger wraps zap with a global sugared console logger and
// context helpers (ToContext/FromContext/WithName/WithKV).
//
// Services take a context and log through it, so a deployment run carries
// its name and target fields into every line it writes.
package logger
