// Package subscription fans accepted path updates out to interested
// consumers. Each (consumer, path) pair has exactly one Handle; a Handle
// buffers at most one value, so a slow consumer always sees the latest
// state rather than a backlog.
package subscription
