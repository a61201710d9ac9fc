// Package engine implements the streaming conversation engine: the
// session controller driving one exchange at a time, the history
// paginator and the conversation directory.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aria-ai/chat-engine/internal/model"
)

// NewMessageID generates an optimistic local message ID. The policy
// is timestamp plus random suffix: unique within a session, not
// globally, which is all local message identity requires.
func NewMessageID(role model.Role) string {
	return fmt.Sprintf("%s-%d-%s", role, time.Now().UnixMilli(), randSuffix(8))
}

// historyMessageID synthesizes an ID for a backfilled history entry
// from its backend timestamp and type, the same shape the entry would
// have had when first rendered live.
func historyMessageID(timestamp, typ string) string {
	prefix := "M"
	if typ != "" {
		prefix = strings.ToUpper(typ[:1])
	}
	return fmt.Sprintf("%s-%s-%s", timestamp, prefix, randSuffix(5))
}

func randSuffix(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}
