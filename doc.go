// Package yessql implements a document-oriented unit-of-work session layered
// on top of a relational backing store. Entities are persisted as opaque
// blobs keyed by an auto-assigned document id, and queryable map and
// map/reduce index projections are kept consistent with those documents
// automatically at commit time.
//
// The session (package session) is the core of the module; everything else
// here implements one of its external collaborators (document storage,
// connection/transaction provider, SQL dialect, index command executors,
// descriptor registry, query builder, id accessor).
package yessql
