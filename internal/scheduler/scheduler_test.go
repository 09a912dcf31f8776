package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/backmassage/autoencode/internal/graph"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

// sampleGraph declares the concat first so submission has to reorder.
func sampleGraph() *graph.JobGraph {
	a := graph.JobNode{ID: "a", Name: "s_chunk001_Encode", Kind: graph.KindEncode, ChunkIndex: 1}
	b := graph.JobNode{ID: "b", Name: "s_chunk002_Encode", Kind: graph.KindEncode, ChunkIndex: 2}
	c := graph.JobNode{ID: "c", Name: "s_Concat", Kind: graph.KindConcat, DependsOn: []string{"a", "b"}}
	return &graph.JobGraph{ID: "g1", SourceJobID: "job", TerminalID: "c", MaxConcurrent: 2, Nodes: []graph.JobNode{c, a, b}}
}

func TestKafkaSubmitter_Submit(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	ledger := NewMemoryLedger()
	s := NewKafkaSubmitter(w, ledger, retry.Strategy{Attempts: 1}, nil)

	require.NoError(t, s.Submit(ctx, sampleGraph()))
	require.Len(t, w.msgs, 3)

	var ids []string
	for _, m := range w.msgs {
		assert.Equal(t, "g1", string(m.Key), "one graph maps to one partition")
		var nm NodeMessage
		require.NoError(t, json.Unmarshal(m.Value, &nm))
		ids = append(ids, nm.Node.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids, "dependencies are published first")

	var last NodeMessage
	require.NoError(t, json.Unmarshal(w.msgs[2].Value, &last))
	assert.Equal(t, "g1", last.GraphID)
	assert.Equal(t, "c", last.TerminalID)
	assert.Equal(t, 2, last.Position)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, []string{"a", "b"}, last.Node.DependsOn)

	st, err := ledger.Statuses(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": StatusSubmitted, "b": StatusSubmitted, "c": StatusSubmitted}, st)

	err = s.Submit(ctx, sampleGraph())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, w.msgs, 3, "redelivery publishes nothing")
}

func TestKafkaSubmitter_PublishFailureReleases(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{err: errors.New("broker down")}
	ledger := NewMemoryLedger()
	s := NewKafkaSubmitter(w, ledger, retry.Strategy{Attempts: 1}, nil)

	require.Error(t, s.Submit(ctx, sampleGraph()))

	ok, err := ledger.Claim(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, ok, "claim was released")
}

func TestKafkaSubmitter_RejectsInvalidGraph(t *testing.T) {
	g := sampleGraph()
	g.TerminalID = "a"
	s := NewKafkaSubmitter(&fakeWriter{}, NewMemoryLedger(), retry.Strategy{Attempts: 1}, nil)
	assert.ErrorIs(t, s.Submit(context.Background(), g), graph.ErrInvalidGraph)
}

func TestRedisLedger_Keys(t *testing.T) {
	r := &RedisLedger{prefix: "autoencode"}
	assert.Equal(t, "autoencode:graph:g1:claim", r.claimKey("g1"))
	assert.Equal(t, "autoencode:graph:g1:nodes", r.statusKey("g1"))
}

func TestKafkaSubmitter_SamePartitionForGraph(t *testing.T) {
	w := &fakeWriter{}
	s := NewKafkaSubmitter(w, NewMemoryLedger(), retry.Strategy{Attempts: 1}, nil)
	require.NoError(t, s.Submit(context.Background(), sampleGraph()))

	var bal kafka.Hash
	partitions := []int{0, 1, 2, 3, 4, 5, 6, 7}
	want := bal.Balance(w.msgs[0], partitions...)
	for _, m := range w.msgs[1:] {
		assert.Equal(t, want, bal.Balance(m, partitions...))
	}
}

func TestKafkaSubmitter_TaskLayout(t *testing.T) {
	g := sampleGraph()
	g.Layout = graph.LayoutTasks
	g.TaskJob = "s_Encode"
	g.Nodes[0].Task = 2
	g.Nodes[1].Task = 0
	g.Nodes[2].Task = 1
	g.Nodes = []graph.JobNode{g.Nodes[1], g.Nodes[2], g.Nodes[0]}

	w := &fakeWriter{}
	s := NewKafkaSubmitter(w, NewMemoryLedger(), retry.Strategy{Attempts: 1}, nil)
	require.NoError(t, s.Submit(context.Background(), g))
	require.Len(t, w.msgs, 3)

	for i, m := range w.msgs {
		var nm NodeMessage
		require.NoError(t, json.Unmarshal(m.Value, &nm))
		assert.Equal(t, graph.LayoutTasks, nm.Layout)
		assert.Equal(t, "s_Encode", nm.Job)
		assert.Equal(t, i, nm.Node.Task)
	}
}
