// Package registry houses the session manager: the get-or-create mapping from
// a (user, thread) key to a live run identity. Its single most important
// contract is session continuity: two calls with the same key yield the same
// run id while every call mints a fresh request id. Creation is at-most-once
// per key even under concurrent callers for the same conversation; unrelated
// users never contend on a shared lock during the slow path.
//
// Records are volatile and process-local. Expiry only affects future lookups:
// contexts already handed out keep working until their engines are cleaned up.
package registry
