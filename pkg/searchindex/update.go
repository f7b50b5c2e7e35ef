// Package searchindex implements the bulk search-index writer (§4.8):
// parent/child artifact-message documents, flushed in batches grouped by
// size, count, and idle time.
package searchindex

import "context"

// Update is one pending write against the search index, corresponding to
// one alternating {update:{...}}/{doc,...} pair in the eventual bulk
// request body.
type Update struct {
	// SpoolID correlates this update back to the originating envelope, so
	// the loader can commit or roll back the right spool entries once a
	// batch's flush result is known.
	SpoolID string

	DocID   string
	Index   string
	Doc     map[string]interface{}
	Routing string

	// DocAsUpsert is true for child (message) documents, which are always
	// upserted, and false for parent (artifact) documents, which are
	// created only on first observation and never overwritten thereafter.
	DocAsUpsert bool
}

// BulkIndex is the abstract search-index backend the scheduler flushes
// batches against. Implementations: adapters/meilisearch (production),
// adapters/bleve (embedded/offline/test).
type BulkIndex interface {
	Bulk(ctx context.Context, updates []Update) error
}

// IndexName resolves (context, kind) to a concrete index name, prefixed by
// a configured string. Pure function per §4.8.
func IndexName(prefix, context, kind string) string {
	return prefix + context + "-" + kind
}

// InvalidMessagesIndex is the fallback index for invalid/malformed
// messages on the index path (§4.5, §7).
func InvalidMessagesIndex(prefix string) string {
	return prefix + "invalid-messages"
}

// maxInvalidBodyBytes is the UTF-8 byte threshold past which an invalid
// message's raw body is replaced with a truncation note rather than
// stored verbatim (§4.8).
const maxInvalidBodyBytes = 17_800_000

// TruncateIfTooLarge returns body unchanged unless it exceeds the 17.8 MB
// threshold, in which case it returns the fixed truncation note.
func TruncateIfTooLarge(body string) string {
	if len(body) > maxInvalidBodyBytes {
		return "Message is bigger than 16Mb. Cannot store."
	}
	return body
}
