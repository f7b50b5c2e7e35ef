package searchindex

import "fmt"

// ParentDocID returns the parent (artifact) document id, per §3.4.
func ParentDocID(artifactType, artifactID string) string {
	return fmt.Sprintf("%s-%s", artifactType, artifactID)
}

// NewParentUpdate builds the Update record for the parent (artifact)
// document: created on first observation, never overwritten thereafter
// (DocAsUpsert=false).
func NewParentUpdate(spoolID, index, artifactType, artifactID string, searchable map[string]interface{}) Update {
	return Update{
		SpoolID:     spoolID,
		Index:       index,
		DocID:       ParentDocID(artifactType, artifactID),
		Doc:         searchable,
		DocAsUpsert: false,
	}
}

// NewChildUpdate builds the Update record for the child (message)
// document: always upserted (DocAsUpsert=true), routed to its parent.
func NewChildUpdate(spoolID, index, brokerMsgID, parentDocID string, searchable map[string]interface{}) Update {
	return Update{
		SpoolID:     spoolID,
		Index:       index,
		DocID:       brokerMsgID,
		Doc:         searchable,
		Routing:     parentDocID,
		DocAsUpsert: true,
	}
}
