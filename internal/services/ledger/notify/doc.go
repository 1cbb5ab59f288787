// Package notify relays committed transfer events from the notification
// outbox to participants, over RabbitMQ or a log-only fallback.
package notify
