// Package ws implements the WebSocket hub for tidewatch.
//
// Every connection is a consumer of the subscription multiplexer with its
// own UUID consumer id. Clients send JSON commands:
//
//	{"action": "subscribe",   "path": "self.navigation.speedOverGround", "policy": "default"}
//	{"action": "unsubscribe", "path": "self.navigation.speedOverGround"}
//
// policy is "default", "any" or a source id; empty means "any".
//
// The hub sends envelopes of the form
//
//	{"event": "<name>", "data": {...}}
//
// with events hello (carries consumerId), subscribed, unsubscribed, value
// (a subscription.Delivery), severity (a zones.Change, to every client),
// notification (a notify.Notification, to every client) and error.
//
// Hub.Run(ctx) forwards severity changes and notifications until ctx is
// cancelled, then closes all active connections. A client whose outgoing
// buffer fills up is disconnected. Every subscription of a client is
// removed when it disconnects.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws by the server.
package ws
