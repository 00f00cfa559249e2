package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/voiceforth/config"
)

type fakePublisher struct {
	channel  string
	message  interface{}
	deadline bool
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message
	_, f.deadline = ctx.Deadline()
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestMirrorPublishes(t *testing.T) {
	pub := &fakePublisher{}
	m := NewRedisMirror(pub, "voiceforth:slides", time.Second)

	require.NoError(t, m.Mirror(context.Background(), "g3"))
	assert.Equal(t, "voiceforth:slides", pub.channel)
	assert.Equal(t, "g3", pub.message)
	assert.True(t, pub.deadline, "configured timeout should bound the publish")
}

func TestMirrorWrapsError(t *testing.T) {
	boom := errors.New("connection refused")
	m := NewRedisMirror(&fakePublisher{err: boom}, "slides", 0)

	err := m.Mirror(context.Background(), "n")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "publish slides")
}

func TestConnUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Port 1 on loopback refuses connections.
	_, err := Conn(ctx, config.RedisConfig{Host: "127.0.0.1", Port: "1", Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
