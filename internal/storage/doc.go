// Package storage opens the SQLite database shared by the asset registry and
// the change request store.
//
// Open applies connection pragmas and runs the embedded golang-migrate
// migrations. The package also exposes the busy-retry and column helpers both
// stores use so they persist timestamps and nullable columns the same way.
package storage
