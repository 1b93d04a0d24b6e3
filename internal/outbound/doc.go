// Package outbound publishes local edits back to the data bus over its REST
// PUT interface.
//
// Client.Put maps a dotted path to
// {endpoint}/signalk/v1/api/vessels/self/<path/with/slashes> and sends
// {"value": ...}. Transport errors and 5xx responses are retried with
// truncated exponential backoff (±25% jitter) until the attempt limit or the
// context deadline; 4xx responses are permanent and returned at once.
//
// Discard is the publisher used when no endpoint is configured.
package outbound
