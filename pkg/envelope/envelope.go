// Package envelope defines the canonical message shape that crosses the
// spool between the listener and the loader.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
)

// SpoolMessage is the envelope every message takes once it leaves a broker
// listener and before it is handed to the validator. See spec §3.1.
type SpoolMessage struct {
	SpoolID      string                 `json:"spool_id"`
	BrokerMsgID  string                 `json:"broker_msg_id"`
	BrokerTopic  string                 `json:"broker_topic"`
	ProviderName string                 `json:"provider_name"`
	ProviderTS   int64                  `json:"provider_ts"`
	HeaderTS     *int64                 `json:"header_ts,omitempty"`
	Body         map[string]interface{} `json:"body"`
	BrokerExtra  map[string]string      `json:"broker_extra,omitempty"`
}

// NormalizeTopic strips the "topic://" prefix some brokers prepend.
func NormalizeTopic(topic string) string {
	return strings.TrimPrefix(topic, "topic://")
}

// New constructs a SpoolMessage, deriving spool_id as
// "<provider_ts>-<broker_msg_id>" per §3.1.
func New(brokerMsgID, brokerTopic, providerName string, providerTS int64, headerTS *int64, body map[string]interface{}, extra map[string]string) SpoolMessage {
	return SpoolMessage{
		SpoolID:      fmt.Sprintf("%d-%s", providerTS, brokerMsgID),
		BrokerMsgID:  brokerMsgID,
		BrokerTopic:  NormalizeTopic(brokerTopic),
		ProviderName: providerName,
		ProviderTS:   providerTS,
		HeaderTS:     headerTS,
		Body:         body,
		BrokerExtra:  extra,
	}
}

// DecodeBody attempts to UTF-8 decode and JSON-parse a raw broker payload.
// Per §4.1 step 2, a parse failure is handled by the listener (ack + drop),
// not treated as a pipeline error here.
func DecodeBody(raw []byte) (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return body, nil
}

// Filename returns the on-disk filename this envelope is persisted under.
// Filenames incorporate spool_id so a directory listing sorts into FIFO
// order (see §6.2).
func (m SpoolMessage) Filename() string {
	return m.SpoolID + ".json"
}

// Marshal serializes the envelope for on-disk persistence.
func (m SpoolMessage) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Unmarshal parses a previously persisted envelope.
func Unmarshal(data []byte) (SpoolMessage, error) {
	var m SpoolMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return SpoolMessage{}, err
	}
	return m, nil
}

// ValidateShape checks that the envelope carries the §3.1 required field
// set. A failure here is an "envelope-shape violation" per §7 — committed
// (dropped) and logged, never retried.
func (m SpoolMessage) ValidateShape() error {
	const op = "envelope.ValidateShape"
	if m.SpoolID == "" {
		return kaierrors.ValidationError(op, nil, "missing spool_id")
	}
	if m.BrokerMsgID == "" {
		return kaierrors.ValidationError(op, nil, "missing broker_msg_id")
	}
	if m.BrokerTopic == "" {
		return kaierrors.ValidationError(op, nil, "missing broker_topic")
	}
	if m.ProviderName == "" {
		return kaierrors.ValidationError(op, nil, "missing provider_name")
	}
	if m.ProviderTS == 0 {
		return kaierrors.ValidationError(op, nil, "missing provider_ts")
	}
	if m.Body == nil {
		return kaierrors.ValidationError(op, nil, "missing body")
	}
	return nil
}

// IsCITopic reports whether the topic belongs to the ".ci." message family,
// which is routed through the strict/relaxed versioned validator (§4.4).
func (m SpoolMessage) IsCITopic() bool {
	return strings.Contains(m.BrokerTopic, ".ci.")
}

// Version extracts body.version as a string, or "" if absent/non-string.
func (m SpoolMessage) Version() string {
	if v, ok := m.Body["version"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
