package redisbridge

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/trickstertwo/xcaller"
)

// Stream entry fields.
const (
	fieldID         = "id"
	fieldOrigin     = "origin"
	fieldAction     = "action"
	fieldPayload    = "payload" // raw codec bytes
	fieldProducedAt = "producedAt"
)

// Envelope is one fired action as carried on the stream.
type Envelope struct {
	ID         string
	Origin     string
	Action     string
	Payload    []byte
	ProducedAt time.Time
}

func (e Envelope) values() map[string]any {
	return map[string]any{
		fieldID:         e.ID,
		fieldOrigin:     e.Origin,
		fieldAction:     e.Action,
		fieldPayload:    e.Payload,
		fieldProducedAt: e.ProducedAt.UnixNano(),
	}
}

func decodeEnvelope(vals map[string]any) Envelope {
	var e Envelope
	if v, ok := vals[fieldID]; ok {
		e.ID = asString(v)
	}
	if v, ok := vals[fieldOrigin]; ok {
		e.Origin = asString(v)
	}
	if v, ok := vals[fieldAction]; ok {
		e.Action = asString(v)
	}
	if v, ok := vals[fieldPayload]; ok {
		switch p := v.(type) {
		case []byte:
			e.Payload = p
		case string:
			e.Payload = []byte(p)
		}
	}
	if pa := vals[fieldProducedAt]; pa != nil {
		if ns, ok := toInt64(pa); ok && ns > 0 {
			e.ProducedAt = time.Unix(0, ns)
		}
	}
	return e
}

// RemoteError is an error payload received from another process. Only its
// message survives the trip.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return e.Msg }

// Encode turns a payload into codec bytes. Errors travel as their message.
func Encode(c xcaller.Codec, payload any) ([]byte, error) {
	if err, ok := payload.(error); ok {
		return c.Marshal(err.Error())
	}
	return c.Marshal(payload)
}

// Decode turns codec bytes back into a payload of the action's type.
// Error-typed actions get a *RemoteError.
func Decode(c xcaller.Codec, data []byte, typ reflect.Type) (any, error) {
	if typ != nil && typ.Kind() == reflect.Interface && typ.NumMethod() > 0 {
		if !reflect.TypeFor[*RemoteError]().Implements(typ) {
			return nil, fmt.Errorf("%w: cannot decode into interface type %s", xcaller.ErrInvalidArgument, typ)
		}
		msg, err := xcaller.Decode[string](c, data)
		if err != nil {
			return nil, err
		}
		return &RemoteError{Msg: msg}, nil
	}
	return xcaller.DecodeAs(c, data, typ)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	case []byte:
		return toInt64(string(n))
	}
	return 0, false
}
