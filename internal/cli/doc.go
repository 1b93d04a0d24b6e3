// Package cli is the tidewatch command tree.
//
//	tidewatch serve --config tidewatch.yaml [--ui-dir ui/dist]
//	tidewatch units list [--group Speed]
//	tidewatch units convert <measure> <value> [--to-base]
package cli
