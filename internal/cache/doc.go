// Package cache defines the host cache contract (Backend, Object, Expire) and
// the disk-backed store that keeps static cache objects under
// CacheDirectory/<bin>/<cid>.json. The store exposes read/write primitives with
// safe semantics (temp file + rename, per-entry locks) and a Walk primitive so
// higher layers can implement wildcard clears and emptiness checks. The
// staticcache decorator depends on this package for its static-file path; the
// fallback backends depend on it for the shared Object/Expire types.
package cache
