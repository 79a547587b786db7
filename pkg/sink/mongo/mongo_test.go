package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/itohio/gooven/pkg/channel"
	"github.com/itohio/gooven/pkg/supervisor"
)

type fakeCollection struct {
	docs     []interface{}
	err      error
	deadline bool
}

func (c *fakeCollection) InsertOne(ctx context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	_, c.deadline = ctx.Deadline()
	if c.err != nil {
		return nil, c.err
	}
	c.docs = append(c.docs, doc)
	return &mongo.InsertOneResult{InsertedID: len(c.docs)}, nil
}

func testCycle() supervisor.Cycle {
	return supervisor.Cycle{
		Seq:     2,
		Time:    time.Date(2026, 10, 18, 14, 5, 9, 0, time.UTC),
		Elapsed: 2 * time.Second,
		Pushed:  true,
		Channels: []channel.Snapshot{
			{
				SensorSnapshot: channel.SensorSnapshot{Name: "Channel 0", Temperature: channel.Valid(24.5)},
				Target:         25,
				Band:           5,
				IntegralTime:   10,
				Output:         channel.Valid(40),
				Proportional:   channel.Valid(30),
				Integral:       channel.Valid(10),
			},
			{
				SensorSnapshot: channel.SensorSnapshot{Name: "Channel 1", Faulted: true},
				Index:          1,
				Target:         60,
			},
		},
		Sample: &channel.SensorSnapshot{Name: "Sample", Temperature: channel.Valid(21)},
	}
}

func TestNewCycleDoc(t *testing.T) {
	doc := NewCycleDoc(testCycle())

	assert.Equal(t, 2, doc.Seq)
	assert.Equal(t, 2.0, doc.Elapsed)
	assert.True(t, doc.Pushed)
	require.Len(t, doc.Channels, 2)

	ch0 := doc.Channels[0]
	require.NotNil(t, ch0.Temperature)
	assert.Equal(t, 24.5, *ch0.Temperature)
	assert.Equal(t, 40.0, *ch0.Output)

	ch1 := doc.Channels[1]
	assert.True(t, ch1.Faulted)
	assert.Nil(t, ch1.Temperature)
	assert.Nil(t, ch1.Output)
	assert.Nil(t, ch1.Proportional)
	assert.Nil(t, ch1.Integral)

	require.NotNil(t, doc.Sample)
	assert.Equal(t, 21.0, *doc.Sample)
}

func TestCycleDoc_BSON(t *testing.T) {
	data, err := bson.Marshal(NewCycleDoc(testCycle()))
	require.NoError(t, err)

	raw := bson.Raw(data)
	assert.Equal(t, 2.0, raw.Lookup("elapsed_s").Double())
	assert.Equal(t, "Channel 1", raw.Lookup("channels", "1", "name").StringValue())
	assert.Equal(t, bsontype.Null, raw.Lookup("channels", "1", "temperature").Type)
	assert.True(t, raw.Lookup("channels", "1", "faulted").Boolean())
	assert.Equal(t, 24.5, raw.Lookup("channels", "0", "temperature").Double())
}

func TestSink_Publish(t *testing.T) {
	coll := &fakeCollection{}
	s := New(coll, time.Second, zerolog.Nop())

	require.NoError(t, s.Publish(testCycle()))
	require.Len(t, coll.docs, 1)
	assert.True(t, coll.deadline)

	doc, ok := coll.docs[0].(CycleDoc)
	require.True(t, ok)
	assert.Equal(t, 2, doc.Seq)
}

func TestSink_PublishError(t *testing.T) {
	down := errors.New("server selection timeout")
	s := New(&fakeCollection{err: down}, 0, zerolog.Nop())

	err := s.Publish(testCycle())
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "cycle 2")
}
