package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

// EnvelopeVersion is the current layout of PayloadEnvelope.
const EnvelopeVersion = 1

// ActorRef identifies who caused the event. System-originated events (webhooks,
// reconciliation) carry no actor.
type ActorRef struct {
	UserID  uuid.UUID      `json:"user_id"`
	StoreID *uuid.UUID     `json:"estore_id,omitempty"`
	Role    enums.UserRole `json:"role,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive as the Pub/Sub message body. Routing metadata travels in message
// attributes instead.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
