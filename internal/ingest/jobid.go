package ingest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// jobNamespace scopes name-based job ids to this service
var jobNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://addipi/queue-service/jobs"))

// MessageKey is the durable identity of a delivery: the publisher's message
// id, or a content hash of the body when the publisher set none
func MessageKey(messageID string, body []byte) string {
	if messageID != "" {
		return "msg:" + messageID
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// JobID derives the job id from a message key. The same key always yields
// the same id, so a redelivered event lands on the same record.
func JobID(key string) string {
	return uuid.NewSHA1(jobNamespace, []byte(key)).String()
}
