// Package events fans agent activity out to observers: structured logs, a
// WebSocket hub for live clients, and NATS subjects for downstream services.
package events
