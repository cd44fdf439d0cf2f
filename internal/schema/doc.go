// Package schema defines the Task record for tasksync.
//
// # Overview
//
// A Task lives in two places: the on-device SQLite store (internal/db) and a
// remote document collection (internal/remote). Both sides use the same
// identifier, a BSON ObjectID rendered as 24 lowercase hex characters:
//
//	6650f1c2a9e4b3d2c1f0e9d8
//
// The remote document carries exactly these fields:
//
//	{
//	  "title":       "Buy milk",
//	  "description": "2 litres",
//	  "isCompleted": false,
//	  "createdAt":   "2026-01-10T07:36:29.123456789Z",
//	  "updatedAt":   "2026-01-10T07:36:29.123456789Z",
//	  "userId":      "u-42"
//	}
//
// Synced is never sent to the remote; it is the local acknowledgment that
// the fields above have been written there.
//
// # Versioning
//
// Version is recorded in the local store's schema_meta table. Stores written
// at an older version are migrated forward by internal/db; a store written by
// a newer binary is refused.
package schema
