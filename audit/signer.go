package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SignatureKey is the metadata key carrying an event's HMAC signature.
const SignatureKey = "signature"

// EventSigner produces tamper-evident HMAC-SHA256 signatures over events.
// The signature covers the event identity and the full action block, so a
// stored event can later be checked against modification.
type EventSigner struct {
	secretKey []byte
}

// NewEventSigner creates a signer with the given shared secret.
func NewEventSigner(secretKey string) *EventSigner {
	return &EventSigner{secretKey: []byte(secretKey)}
}

// Sign computes the signature for an event. The metadata block is excluded
// from the payload so the signature can be stored there.
func (s *EventSigner) Sign(event *AuditEvent) (string, error) {
	payload, err := s.payload(event)
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, s.secretKey)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SignEvent signs the event and stores the signature in its metadata.
func (s *EventSigner) SignEvent(event *AuditEvent) error {
	sig, err := s.Sign(event)
	if err != nil {
		return err
	}
	if event.Metadata == nil {
		event.Metadata = make(map[string]any, 1)
	}
	event.Metadata[SignatureKey] = sig
	return nil
}

// Verify recomputes the event signature and compares it in constant time
// against the one stored in the event metadata.
func (s *EventSigner) Verify(event *AuditEvent) (bool, error) {
	stored, ok := event.Metadata[SignatureKey].(string)
	if !ok || stored == "" {
		return false, nil
	}
	expected, err := s.Sign(event)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(stored)), nil
}

func (s *EventSigner) payload(event *AuditEvent) ([]byte, error) {
	action, err := json.Marshal(event.Action)
	if err != nil {
		return nil, fmt.Errorf("encode action for signing: %w", err)
	}
	header := event.EventID + event.Timestamp.UTC().Format(time.RFC3339Nano) + event.Version
	return append([]byte(header), action...), nil
}
