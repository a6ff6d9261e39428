// Package api is the HTTP transport for the task scheduler. It submits and
// queries tasks, cancels them, and forwards NotificationHub events to
// clients over Server-Sent Events or WebSockets. Owners are identified by
// the subject of a verified bearer token.
package api
