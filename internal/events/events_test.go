package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	var got []string
	boom := errors.New("boom")

	m := Multi{
		SinkFunc(func(_ context.Context, d Detection) error {
			got = append(got, "a:"+d.URL)
			return boom
		}),
		nil,
		SinkFunc(func(_ context.Context, d Detection) error {
			got = append(got, "b:"+d.URL)
			return nil
		}),
	}

	err := m.Publish(context.Background(), Detection{URL: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:u", "b:u"}, got)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Publish(context.Background(), Detection{}))
}
