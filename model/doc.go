// Package model defines the shared identifier types used across the
// distributed table, the local tree builder, and the migration path.
package model
