// Package configstore persists zone definitions and unit-default
// preferences. FileStore keeps them in a CUE-validated YAML file and
// SQLiteStore in a local SQLite database; both satisfy meta.ConfigStore.
package configstore
