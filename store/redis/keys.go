package redis

// Redis key naming conventions for checkpoint data.
//
// The bare layout is wire compatible with other checkpoint savers that
// share the same Redis:
//
//	checkpoint-content:{lineage}   serialized History blob
//	checkpoint-lock:{lineage}      lineage lock
//
// A namespace, when configured, is prepended verbatim to both keys.

const (
	contentPrefix = "checkpoint-content:"
	lockPrefix    = "checkpoint-lock:"
)

type keyspace struct {
	namespace string
}

// content returns the blob key: {ns}checkpoint-content:{lineage}
func (k keyspace) content(lineageID string) string {
	return k.namespace + contentPrefix + lineageID
}

// lock returns the lock key: {ns}checkpoint-lock:{lineage}
func (k keyspace) lock(lineageID string) string {
	return k.namespace + lockPrefix + lineageID
}
