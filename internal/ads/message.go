package ads

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage marks a content message that does not follow the
// {"url": string, "urls": [string]} contract.
var ErrMalformedMessage = errors.New("malformed ads message")

// Message is a decoded content message: the page URL and the document URLs
// observed on it.
type Message struct {
	URL  string
	URLs []string
}

// ParseMessage decodes a content message. Keys must match exactly; any
// deviation from the contract, including null values, is reported as
// ErrMalformedMessage.
func ParseMessage(raw json.RawMessage) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	var url *string
	if err := decodeField(fields, MessageURLKey, &url); err != nil {
		return Message{}, err
	}
	if url == nil {
		return Message{}, fmt.Errorf("%w: %q is null", ErrMalformedMessage, MessageURLKey)
	}
	var list *[]*string
	if err := decodeField(fields, MessageURLsKey, &list); err != nil {
		return Message{}, err
	}
	if list == nil {
		return Message{}, fmt.Errorf("%w: %q is null", ErrMalformedMessage, MessageURLsKey)
	}
	urls := make([]string, 0, len(*list))
	for i, u := range *list {
		if u == nil {
			return Message{}, fmt.Errorf("%w: %s[%d] is null", ErrMalformedMessage, MessageURLsKey, i)
		}
		urls = append(urls, *u)
	}
	return Message{URL: *url, URLs: urls}, nil
}

func decodeField(fields map[string]json.RawMessage, key string, dst any) error {
	v, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrMalformedMessage, key)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
	}
	return nil
}

// Encode renders m in the wire format.
func (m Message) Encode() (json.RawMessage, error) {
	urls := m.URLs
	if urls == nil {
		urls = []string{}
	}
	return json.Marshal(map[string]any{MessageURLKey: m.URL, MessageURLsKey: urls})
}
