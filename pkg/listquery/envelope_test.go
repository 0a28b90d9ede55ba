package listquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestDecodeEnvelopeShapes(t *testing.T) {
	paged := ServerPageMeta{CurrentPage: 2, LastPage: 3, PerPage: 1, Total: 3}
	cases := map[string]struct {
		body      string
		paginated bool
	}{
		"bare array":        {`[{"id":1,"name":"a"}]`, false},
		"data array":        {`{"data":[{"id":1,"name":"a"}]}`, false},
		"flat pagination":   {`{"data":[{"id":1,"name":"a"}],"current_page":2,"last_page":3,"per_page":1,"total":3}`, true},
		"meta block":        {`{"data":[{"id":1,"name":"a"}],"links":{},"meta":{"current_page":2,"last_page":3,"per_page":1,"total":3}}`, true},
		"nested paginator":  {`{"data":{"data":[{"id":1,"name":"a"}],"current_page":2,"last_page":3,"per_page":1,"total":3}}`, true},
		"success wrapper":   {`{"success":true,"data":{"data":[{"id":1,"name":"a"}],"current_page":2,"last_page":3,"per_page":1,"total":3}}`, true},
		"success with list": {`{"success":true,"data":[{"id":1,"name":"a"}]}`, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env, err := DecodeEnvelope[item]([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, []item{{ID: 1, Name: "a"}}, env.Data)
			assert.Equal(t, tc.paginated, env.Paginated)
			if tc.paginated {
				assert.Equal(t, paged, env.Meta)
				assert.NotNil(t, env.MetaPtr())
			} else {
				assert.Nil(t, env.MetaPtr())
			}
		})
	}
}

func TestDecodeEnvelopeEmptyData(t *testing.T) {
	env, err := DecodeEnvelope[item]([]byte(`{"data":null}`))
	require.NoError(t, err)
	assert.NotNil(t, env.Data)
	assert.Empty(t, env.Data)
}

func TestDecodeEnvelopeFailures(t *testing.T) {
	_, err := DecodeEnvelope[item]([]byte(`{"success":false,"message":"boom"}`))
	assert.ErrorIs(t, err, ErrUnsuccessful)
	assert.Contains(t, err.Error(), "boom")

	_, err = DecodeEnvelope[item]([]byte(`{"items":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedShape)

	_, err = DecodeEnvelope[item]([]byte(`"text"`))
	assert.ErrorIs(t, err, ErrUnsupportedShape)
}

func TestDecodeObject(t *testing.T) {
	wrapped, err := DecodeObject[item]([]byte(`{"success":true,"data":{"id":4,"name":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, item{ID: 4, Name: "x"}, wrapped)

	bare, err := DecodeObject[item]([]byte(`{"id":5,"name":"y"}`))
	require.NoError(t, err)
	assert.Equal(t, item{ID: 5, Name: "y"}, bare)
}
