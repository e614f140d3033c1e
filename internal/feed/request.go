package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultSecretLength is the API key length the feed accepts by default.
	DefaultSecretLength = 32
	// DefaultTopicPrefix namespaces subscriptions to the quote channel.
	DefaultTopicPrefix = "Q."
)

// Action is the outbound control verb.
type Action string

const (
	ActionAuth      Action = "auth"
	ActionSubscribe Action = "subscribe"
)

// Request is an outbound control message. Build it through a Protocol so
// that the parameters are validated.
type Request struct {
	Action Action `json:"action"`
	Params string `json:"params"`
}

// Protocol holds the provider specific constants used to build requests.
type Protocol struct {
	SecretLength int
	TopicPrefix  string
}

// DefaultProtocol returns the protocol constants for the quote feed.
func DefaultProtocol() Protocol {
	return Protocol{
		SecretLength: DefaultSecretLength,
		TopicPrefix:  DefaultTopicPrefix,
	}
}

// Auth builds an authentication request carrying secret.
func (p Protocol) Auth(secret string) (Request, error) {
	if len(secret) != p.SecretLength {
		return Request{}, fmt.Errorf("%w: got %d characters, want %d", ErrInvalidSecretLength, len(secret), p.SecretLength)
	}
	return Request{Action: ActionAuth, Params: secret}, nil
}

// Subscribe builds a subscription request for targets, in the given order.
func (p Protocol) Subscribe(targets []string) (Request, error) {
	if len(targets) == 0 {
		return Request{}, ErrEmptyTargetList
	}
	for i, target := range targets {
		if target == "" {
			return Request{}, fmt.Errorf("%w: position %d", ErrEmptyTarget, i)
		}
	}
	return Request{
		Action: ActionSubscribe,
		Params: p.TopicPrefix + strings.Join(targets, ","),
	}, nil
}

// Marshal serializes the request as {"action":...,"params":...}.
func (r Request) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", r.Action, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
