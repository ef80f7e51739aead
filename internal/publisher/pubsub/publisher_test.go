package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type note struct {
	RunID string `json:"run_id"`
	Tag   string `json:"tag"`
}

func (n note) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID, "tag": n.Tag}
}

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "battles")
	require.NoError(t, err)
	return srv, topic
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	t.Parallel()

	srv, topic := newTestTopic(t)
	pub := New(topic)
	t.Cleanup(func() { _ = pub.Close() })

	id, err := pub.Publish(context.Background(), "battles", note{RunID: "r1", Tag: "ABC"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"run_id":"r1","tag":"ABC"}`, string(msgs[0].Data))
	require.Equal(t, "ABC", msgs[0].Attributes["tag"])
}

func TestPublishPlainPayload(t *testing.T) {
	t.Parallel()

	srv, topic := newTestTopic(t)
	pub := New(topic)
	t.Cleanup(func() { _ = pub.Close() })

	_, err := pub.Publish(context.Background(), "battles", map[string]int{"battles": 3})
	require.NoError(t, err)
	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Empty(t, msgs[0].Attributes)
}

func TestDialPublishes(t *testing.T) {
	t.Parallel()

	srv, _ := newTestTopic(t)
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	pub, err := Dial(context.Background(), "test-project", "battles", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	_, err = pub.Publish(context.Background(), "battles", note{RunID: "r2", Tag: "XYZ"})
	require.NoError(t, err)
	require.Len(t, srv.Messages(), 1)
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "battles", note{})
	require.Error(t, err)
}
