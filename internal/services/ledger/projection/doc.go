// Package projection builds the transfer read model from the event journal.
//
// Each event is applied in one transaction together with its checkpoint, so
// the read model, the fees an execution levies and the notification outbox
// move forward exactly once per event.
package projection
