package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/backmassage/autoencode/internal/config"
)

const sampleJob = `{
  "id": "5f3c9e2a",
  "name": "Shot010_v002 [h265]",
  "plugin": "Blender",
  "output_directories": ["/renders/shot010"],
  "output_filenames": ["shot010_####.exr"],
  "frames": [1003, 1001, 1002, 1004],
  "info": {"Comment": "final"},
  "metadata": {"AutoEncode.Codec": "prores"},
  "scheduling": {"priority": 60, "pool": "encode", "allow_list": ["gpu01"]},
  "status": "Completed"
}`

func TestDecode(t *testing.T) {
	j, err := Decode([]byte(sampleJob))
	require.NoError(t, err)

	assert.Equal(t, "Blender", j.Plugin)
	assert.Equal(t, 60, j.Scheduling.Priority)
	assert.Equal(t, []string{"gpu01"}, j.Scheduling.AllowList)
	assert.True(t, j.Completed())

	first, last, ok := j.FrameRange()
	require.True(t, ok)
	assert.Equal(t, 1001, first)
	assert.Equal(t, 1004, last)

	dir, file, ok := j.FirstOutput()
	require.True(t, ok)
	assert.Equal(t, "/renders/shot010", dir)
	assert.Equal(t, "shot010_####.exr", file)

	info := j.InfoValues()
	assert.Equal(t, "final", info["Comment"])
	assert.Equal(t, "/renders/shot010", info["OutputDirectory0"])
	assert.Equal(t, "/renders/shot010/shot010_####.exr", info["OutputPath0"])
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"name": "x"}`))
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestRenderJob_Edges(t *testing.T) {
	var j RenderJob
	_, _, ok := j.FrameRange()
	assert.False(t, ok)
	_, _, ok = j.FirstOutput()
	assert.False(t, ok)

	j.Status = StatusFailed
	assert.False(t, j.Completed())
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_Consume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(sampleJob)},
			{Offset: 2, Value: []byte(`garbage`)},
			{Offset: 3, Value: []byte(`{"id": "flaky"}`)},
		},
	}
	var handled []string
	h := HandlerFunc(func(_ context.Context, j RenderJob) error {
		handled = append(handled, j.ID)
		if j.ID == "flaky" && len(handled) == 2 {
			return errors.New("broker unavailable")
		}
		return nil
	})

	c := NewConsumerWithReader(r, "render.completed", retry.Strategy{Attempts: 3}, h, nil)
	require.NoError(t, c.Consume(ctx))

	assert.Equal(t, []string{"5f3c9e2a", "flaky", "flaky"}, handled, "a failed job is retried")
	assert.Equal(t, []int64{1, 2, 3}, r.committed, "undecodable messages are dropped")
}

func TestConsumer_StopsOnPersistentFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(sampleJob)},
			{Offset: 2, Value: []byte(`{"id": "boom"}`)},
			{Offset: 3, Value: []byte(`{"id": "later"}`)},
		},
	}
	var handled []string
	h := HandlerFunc(func(_ context.Context, j RenderJob) error {
		handled = append(handled, j.ID)
		if j.ID == "boom" {
			return errors.New("submit failed")
		}
		return nil
	})

	c := NewConsumerWithReader(r, "render.completed", retry.Strategy{Attempts: 2}, h, nil)
	err := c.Consume(ctx)
	require.ErrorIs(t, err, ErrHandlerFailed)
	assert.Contains(t, err.Error(), "offset 2")

	assert.Equal(t, []string{"5f3c9e2a", "boom", "boom"}, handled)
	assert.Equal(t, []int64{1}, r.committed, "the failed offset is never committed")
	assert.Len(t, r.msgs, 1, "consumption stops at the failed message")
}

func TestStrategy_AtLeastOneAttempt(t *testing.T) {
	s := Strategy(config.Retry{})
	assert.Equal(t, 1, s.Attempts)
}
