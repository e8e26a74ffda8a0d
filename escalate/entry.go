package escalate

import (
	"time"

	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/id"
)

// Entry represents a (session, destination) delivery that the dispatcher
// has given up on and handed to a human operator.
type Entry struct {
	ID          id.ID                        `json:"id"`
	SessionID   string                       `json:"session_id"`
	Destination destination.Destination      `json:"destination"`
	Authority   destination.AuthorityContext `json:"authority"`
	Attempts    int                          `json:"attempts"`
	Error       string                       `json:"error"`
	EscalatedAt time.Time                    `json:"escalated_at"`
	ReplayedAt  *time.Time                   `json:"replayed_at,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
}
