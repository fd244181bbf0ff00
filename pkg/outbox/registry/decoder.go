package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
)

// ErrUnknownSchema is returned when no decoder matches an event type and envelope version.
var ErrUnknownSchema = errors.New("no payload schema registered")

// Decoder turns the data section of an envelope into its typed payload.
type Decoder func(data json.RawMessage) (any, error)

type schemaKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Schemas maps event types and envelope versions to payload decoders.
// Consumers use it to reject malformed events before claiming them.
type Schemas struct {
	mu       sync.RWMutex
	decoders map[schemaKey]Decoder
}

func NewSchemas() *Schemas {
	return &Schemas{decoders: make(map[schemaKey]Decoder)}
}

// CurrentSchemas registers a JSON decoder for every descriptor at the current envelope version.
func CurrentSchemas() *Schemas {
	s := NewSchemas()
	for _, desc := range Descriptors("") {
		// Descriptors never yields an invalid pair.
		_ = s.Register(desc.EventType, outbox.EnvelopeVersion, JSONDecoder(desc.PayloadFactory))
	}
	return s
}

// Register binds decoder to eventType at version, replacing any earlier binding.
func (s *Schemas) Register(eventType enums.OutboxEventType, version int, decoder Decoder) error {
	if !eventType.IsValid() {
		return fmt.Errorf("register schema: invalid event type %q", eventType)
	}
	if version <= 0 {
		return fmt.Errorf("register schema: version must be positive, got %d", version)
	}
	if decoder == nil {
		return errors.New("register schema: decoder is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoders[schemaKey{eventType: eventType, version: version}] = decoder
	return nil
}

// Decode runs the decoder for eventType at version. Envelopes written before
// versioning carry 0 and are read as the current version.
func (s *Schemas) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	if version <= 0 {
		version = outbox.EnvelopeVersion
	}
	s.mu.RLock()
	decoder, ok := s.decoders[schemaKey{eventType: eventType, version: version}]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnknownSchema, eventType, version)
	}
	return decoder(data)
}

// JSONDecoder decodes into a fresh value from factory. Unknown fields are
// tolerated so older consumers keep reading events from newer producers.
func JSONDecoder(factory func() any) Decoder {
	return func(data json.RawMessage) (any, error) {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, errors.New("event data is empty")
		}
		target := factory()
		if err := json.Unmarshal(trimmed, target); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
		return target, nil
	}
}
