// Package notify keeps the operator-facing notification list: publish
// failures, zone alarms and other events the UI shows until dismissed.
package notify
