// Package api implements the tidewatch HTTP REST API.
//
// New(deps) returns an http.Handler (a chi router) that serves:
//
//	GET    /api/v1/health                  overall state, alert counts, throughput
//	GET    /api/v1/paths                   path summaries (?type=, ?self=true)
//	GET    /api/v1/paths/{path}            record, display value and diagnostics
//	GET    /api/v1/metadata[/{path}]       metadata records
//	GET    /api/v1/zones/{path}            zone definitions
//	GET    /api/v1/severity[/{path}]       evaluated severities
//	GET    /api/v1/alerts                  active and recent zone alarms
//	GET    /api/v1/units                   unit catalogue
//	GET    /api/v1/units/base              base units
//	GET    /api/v1/units/defaults          preferred measure per group
//	GET    /api/v1/units/groups/{measure}  candidate display measures
//	GET    /api/v1/units/convert           ?measure=&value=[&to_base=true]
//	GET    /api/v1/stats                   throughput (?format=prometheus)
//	GET    /api/v1/notifications           operator notifications (?all=true)
//
// Mutating routes run behind Deps.Auth:
//
//	POST   /api/v1/updates                 ingest one update or an array
//	POST   /api/v1/metadata                ingest a metadata delta
//	PATCH  /api/v1/metadata/{path}         edit metadata and publish it
//	PUT    /api/v1/zones/{path}            replace zones, persist, re-evaluate
//	DELETE /api/v1/zones/{path}            clear zones
//	PUT    /api/v1/units/defaults          merge unit-group preferences
//	POST   /api/v1/notifications/{id}/dismiss
//	POST   /api/v1/reset                   drop values and severities
//
// Paths in {path} are dot-separated and may be URL-escaped. Every response
// is JSON; errors use {"error": "..."}.
package api
