// Package cache persists the skip-list: absolute paths of images whose last
// compression gain fell below the ratio threshold. The list is stored as a
// single JSON array in a blob bucket (a local directory via fileblob by
// default) and is replaced as a whole on every write. Writers are serialized
// inside the store so concurrent skip events never drop entries, and an
// unparseable list is reset to empty instead of failing the run.
package cache
