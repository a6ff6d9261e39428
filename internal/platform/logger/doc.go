// Package logger configures the process-wide structured logger and carries
// request-scoped loggers through context.
package logger
