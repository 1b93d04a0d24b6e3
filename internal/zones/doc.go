// Package zones evaluates path values against their zone definitions and
// tracks the resulting severity per path.
//
// A zone authored in a display unit is compared against the canonical value
// converted into that unit. When several zones match, the highest severity
// wins. Entering alert or worse fires a zone alarm; returning below alert
// resolves it. Alarms are pushed to the notification center and delivered
// to Slack, Teams or generic HTTP webhooks.
package zones
