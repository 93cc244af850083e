// Package dedup lets a receiver treat repeated deliveries as no-ops.
//
// # Identity and Provenance
//
// Lookups key on (message type, content hash). The client scope an entry was
// recorded under is kept only to group entries in snapshots; the same hash
// sent by two scopes of one message type is one entry.
//
// # Capacity
//
// One bound covers the whole store. When full, the globally oldest entry is
// evicted before a new one is added, whichever scope owns it. A busy scope
// can therefore evict a quiet scope's history. This trades fairness for
// simplicity and is intentional.
//
// # Snapshot Format
//
// Snapshots are plain text, one record per line:
//
//	---
//	<messageType> - <clientScopeId>
//	<hex-hash> - <insertionTimeMillis>
//	<hex-hash> - <insertionTimeMillis>
//	---
//	<messageType> - <clientScopeId>
//	...
//
// Groups appear in first-seen order; hashes within a group are sorted by their
// lowercase hex text. Storing, loading, and storing again yields identical
// bytes. Operators may read and ship these files directly.
package dedup
