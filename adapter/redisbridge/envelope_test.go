package redisbridge

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcaller"
)

type order struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

func TestEnvelope_Values(t *testing.T) {
	at := time.Unix(0, 1_700_000_000_123_456_789)
	in := Envelope{ID: "e1", Origin: "o1", Action: "order.created", Payload: []byte(`{"id":"1"}`), ProducedAt: at}

	// Redis hands every field back as a string.
	vals := map[string]any{}
	for k, v := range in.values() {
		switch x := v.(type) {
		case []byte:
			vals[k] = string(x)
		case int64:
			vals[k] = "1700000000123456789"
		default:
			vals[k] = x
		}
	}

	out := decodeEnvelope(vals)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Origin, out.Origin)
	assert.Equal(t, in.Action, out.Action)
	assert.Equal(t, in.Payload, out.Payload)
	assert.True(t, at.Equal(out.ProducedAt))
}

func TestDecodeEnvelope_Missing(t *testing.T) {
	out := decodeEnvelope(map[string]any{fieldAction: "a"})
	assert.Equal(t, "a", out.Action)
	assert.Empty(t, out.Payload)
	assert.True(t, out.ProducedAt.IsZero())
}

// TestCodec_Struct checks a struct payload comes back as the action's type.
func TestCodec_Struct(t *testing.T) {
	c := xcaller.JSONCodec{}
	data, err := Encode(c, order{ID: "1", Amount: 9.5})
	require.NoError(t, err)

	v, err := Decode(c, data, reflect.TypeFor[order]())
	require.NoError(t, err)
	assert.Equal(t, order{ID: "1", Amount: 9.5}, v)

	v, err = Decode(c, data, reflect.TypeFor[*order]())
	require.NoError(t, err)
	assert.Equal(t, &order{ID: "1", Amount: 9.5}, v)
}

// TestCodec_Error checks errors travel as their message.
func TestCodec_Error(t *testing.T) {
	c := xcaller.JSONCodec{}
	data, err := Encode(c, errors.New("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `"boom"`, string(data))

	v, err := Decode(c, data, reflect.TypeFor[error]())
	require.NoError(t, err)
	var re *RemoteError
	require.ErrorAs(t, v.(error), &re)
	assert.Equal(t, "boom", re.Msg)
	assert.True(t, xcaller.Accepts(xcaller.Exception.Type(), v))
}

func TestCodec_AnyAndUnsupported(t *testing.T) {
	c := xcaller.JSONCodec{}
	v, err := Decode(c, []byte(`{"a":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)

	type stringer interface{ String() string }
	_, err = Decode(c, []byte(`"x"`), reflect.TypeFor[stringer]())
	assert.ErrorIs(t, err, xcaller.ErrInvalidArgument)
}

func TestConfig(t *testing.T) {
	d := Defaults()
	require.NoError(t, d.Validate())
	assert.NotEmpty(t, d.Group)

	c := ConfigFromMap(map[string]any{
		"addr":       "redis:6380",
		"stream":     "s",
		"group":      "g",
		"batch_size": 5,
		"block":      "1s",
		"codec":      "json",
	})
	assert.Equal(t, "redis:6380", c.Addr)
	assert.Equal(t, "s", c.Stream)
	assert.Equal(t, "g", c.Group)
	assert.Equal(t, 5, c.BatchSize)
	assert.Equal(t, time.Second, c.Block)

	c.Stream = ""
	assert.Error(t, c.Validate())

	_, err := New(c)
	assert.Error(t, err)
}

func TestNewWithClient_Validation(t *testing.T) {
	_, err := NewWithClient(nil, Defaults())
	assert.ErrorIs(t, err, xcaller.ErrInvalidArgument)
}
