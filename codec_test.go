package xcaller

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperCodec struct{ JSONCodec }

func (upperCodec) Name() string { return "upper" }

func TestCodecRegistry(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = NewCodec("missing")
	assert.Error(t, err)

	assert.Error(t, RegisterCodec("", func() Codec { return upperCodec{} }))
	assert.Error(t, RegisterCodec("upper", nil))
	require.NoError(t, RegisterCodec("upper", func() Codec { return upperCodec{} }))
	c, err = NewCodec("upper")
	require.NoError(t, err)
	assert.Equal(t, "upper", c.Name())
}

func TestDecodeAs(t *testing.T) {
	c := JSONCodec{}
	data, err := c.Marshal(response{Body: "b"})
	require.NoError(t, err)

	v, err := DecodeAs(c, data, reflect.TypeFor[response]())
	require.NoError(t, err)
	assert.Equal(t, response{Body: "b"}, v)

	v, err = DecodeAs(c, data, reflect.TypeFor[*response]())
	require.NoError(t, err)
	assert.Equal(t, &response{Body: "b"}, v)

	v, err = DecodeAs(c, data, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Body": "b"}, v)

	_, err = DecodeAs(c, data, reflect.TypeFor[error]())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	r, err := Decode[response](c, data)
	require.NoError(t, err)
	assert.Equal(t, "b", r.Body)
	_, err = Decode[response](c, []byte("{"))
	assert.Error(t, err)
}
