// Package events fans live automation output out to subscribers.
//
// Hub implements automation.EventSink; Handler exposes it as a websocket
// stream of JSON-encoded automation.Event values.
package events
