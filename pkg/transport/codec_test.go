package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestGobCodecRoundTrip(t *testing.T) {
	req := &PostDataRequest{Data: [][]byte{[]byte("one"), []byte("two")}}

	c := gobCodec{}
	data, err := c.Marshal(req)
	require.NoError(t, err)

	var out PostDataRequest
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, req.Data, out.Data)
}

func TestGobCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(gobCodecName)
	require.NotNil(t, c)
	assert.Equal(t, gobCodecName, c.Name())
}
