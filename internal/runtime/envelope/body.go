package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/replybus/internal/runtime/errors"
)

var jsonConfig = sonic.ConfigStd

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

var protoJSONUnmarshalOptions = protojson.UnmarshalOptions{
	DiscardUnknown: true,
}

// EncodeBody turns an application payload into envelope body bytes.
// Raw byte slices pass through untouched, protobuf messages use protojson and
// everything else is JSON-encoded.
func EncodeBody(v any) ([]byte, error) {
	switch body := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return body, nil
	case json.RawMessage:
		return []byte(body), nil
	case proto.Message:
		payload, err := protoJSONMarshalOptions.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal protobuf body: %w", err)
		}
		return payload, nil
	default:
		payload, err := jsonConfig.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		return payload, nil
	}
}

// DecodeBody is the inverse of EncodeBody. An empty body leaves v untouched.
func DecodeBody(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if msg, ok := v.(proto.Message); ok {
		if err := protoJSONUnmarshalOptions.Unmarshal(data, msg); err != nil {
			return fmt.Errorf("failed to unmarshal protobuf body: %w", err)
		}
		return nil
	}
	if err := jsonConfig.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal body: %w", err)
	}
	return nil
}

// Error codes carried by RemoteError.
const (
	// CodeNoSubscribers marks the error sent back when a request type has no handler.
	CodeNoSubscribers = "no_subscribers"
	// CodeInvalidBody marks a request whose body could not be decoded by a typed handler.
	CodeInvalidBody = "invalid_body"
)

const defaultRemoteErrorMessage = "an error occurred"

// RemoteError is the error carried in the body of a reply_err envelope.
type RemoteError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error (%s): %s", e.Code, e.Message)
	}
	return "remote error: " + e.Message
}

// Is matches ErrNoSubscribers for errors produced by a missing subscription.
func (e *RemoteError) Is(target error) bool {
	return target == errspkg.ErrNoSubscribers && e.Code == CodeNoSubscribers
}

// NoSubscribersError builds the error replied for an unhandled request type.
func NoSubscribersError(typ string) *RemoteError {
	return &RemoteError{
		Code:    CodeNoSubscribers,
		Message: fmt.Sprintf("no subscribers for type %s", typ),
	}
}

// EncodeError serialises err for a reply_err body. A nil error becomes a
// generic message, and a RemoteError keeps its code.
func EncodeError(err error) ([]byte, error) {
	remote := &RemoteError{Message: defaultRemoteErrorMessage}
	var existing *RemoteError
	switch {
	case errors.As(err, &existing):
		remote = existing
	case err != nil:
		remote.Message = err.Error()
	}
	return jsonConfig.Marshal(remote)
}

// DecodeError reads a reply_err body. Bodies that are not an encoded
// RemoteError are kept verbatim as the message.
func DecodeError(data []byte) error {
	if len(data) == 0 {
		return &RemoteError{Message: defaultRemoteErrorMessage}
	}
	var remote RemoteError
	if err := jsonConfig.Unmarshal(data, &remote); err != nil || remote.Message == "" {
		return &RemoteError{Message: string(data)}
	}
	return &remote
}
