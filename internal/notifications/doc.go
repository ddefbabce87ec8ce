// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event class
// can be muted individually in the [notifications] section so operators can
// keep error alerts while silencing routine summaries.
//
// Workflow code depends only on the Service interface.
package notifications
