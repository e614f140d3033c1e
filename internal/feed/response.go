package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventStatus is the event type the server uses for handshake acknowledgements.
const EventStatus = "status"

// Status is the server's handshake status vocabulary.
type Status string

const (
	StatusConnected   Status = "connected"
	StatusAuthFailed  Status = "auth_failed"
	StatusAuthSuccess Status = "auth_success"
	StatusSuccess     Status = "success"
)

// Response is one inbound event. Status and Message are only set on status
// events; Raw always holds the event object as received.
//
// Status values outside the vocabulary above decode without error and are
// kept as sent. The handshake matches only the known values, so a batch
// holding nothing else (e.g. "auth_timeout") counts as an idle batch.
type Response struct {
	EventType string          `json:"ev"`
	Status    Status          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// DecodeFrame decodes one inbound frame. The wire format is a JSON array of
// event objects, so a frame yields zero or more responses.
func DecodeFrame(frame []byte) ([]Response, error) {
	if !json.Valid(frame) {
		return nil, ErrMalformedFrame
	}

	var items []json.RawMessage
	if err := json.Unmarshal(frame, &items); err != nil {
		return nil, fmt.Errorf("%w: top level is not an array", ErrUnexpectedShape)
	}

	responses := make([]Response, 0, len(items))
	for i, item := range items {
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrUnexpectedShape, i)
		}
		var r Response
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrUnexpectedShape, i, err)
		}
		if r.EventType == "" {
			return nil, fmt.Errorf("%w: element %d has no event type", ErrUnexpectedShape, i)
		}
		r.Raw = item
		responses = append(responses, r)
	}
	return responses, nil
}

// HasStatus reports whether any response in batch carries status.
func HasStatus(batch []Response, status Status) bool {
	for _, r := range batch {
		if r.Status == status {
			return true
		}
	}
	return false
}

// IsStatus reports whether the response is a handshake status event.
func (r Response) IsStatus() bool {
	return r.EventType == EventStatus
}

func (r Response) decodeAs(want []string, v any) error {
	for _, ev := range want {
		if r.EventType == ev {
			dec := json.NewDecoder(bytes.NewReader(r.Raw))
			if err := dec.Decode(v); err != nil {
				return fmt.Errorf("%w: %s event: %v", ErrUnexpectedShape, r.EventType, err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: event type %q, want one of %v", ErrUnexpectedShape, r.EventType, want)
}
