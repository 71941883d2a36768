package envelope

import (
	"encoding/json"
	"fmt"
)

// DecodeRequest parses an ingestion request body. Both the wrapped form
// ({"envelope": {...}, "transport": {...}}) and a flat envelope-only body are
// accepted; the presence of an "envelope" object key is the discriminator.
// Transport metadata is nil for flat bodies.
func DecodeRequest(body []byte) (*Envelope, *TransportMeta, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, nil, fmt.Errorf("malformed request body: %w", err)
	}

	if _, ok := probe["envelope"]; ok {
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, nil, fmt.Errorf("malformed wrapped envelope: %w", err)
		}
		if req.Envelope == nil {
			return nil, nil, fmt.Errorf("envelope object is empty")
		}
		return req.Envelope, req.Transport, nil
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("malformed envelope: %w", err)
	}
	return &env, nil, nil
}

// InnerEnvelopes extracts the inner envelopes of a batch envelope's payload.
// A missing or empty "events" array is not an error; it yields nil. Items
// that are not objects decode to an error entry so the batch path can count
// them as rejected without aborting the rest.
func InnerEnvelopes(batch *Envelope) ([]*Envelope, []error) {
	if batch == nil || batch.Payload == nil {
		return nil, nil
	}
	rawEvents, ok := batch.Payload["events"]
	if !ok {
		return nil, nil
	}
	items, ok := rawEvents.([]any)
	if !ok {
		return nil, []error{fmt.Errorf("payload.events is not an array")}
	}

	var (
		envs []*Envelope
		errs []error
	)
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("events[%d]: %w", i, err))
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			errs = append(errs, fmt.Errorf("events[%d]: %w", i, err))
			continue
		}
		envs = append(envs, &env)
	}
	return envs, errs
}
