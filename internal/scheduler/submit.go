// Package scheduler hands compiled job graphs to the farm. The farm itself is
// external; this package only publishes nodes in dependency order and keeps
// a ledger so a graph is submitted at most once.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"

	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/graph"
	"github.com/backmassage/autoencode/internal/logging"
)

// ErrAlreadySubmitted is returned when the ledger already holds the graph.
var ErrAlreadySubmitted = errors.New("graph already submitted")

// Submitter accepts a validated graph.
type Submitter interface {
	Submit(ctx context.Context, g *graph.JobGraph) error
}

// NodeMessage is the payload of one published node.
type NodeMessage struct {
	GraphID       string        `json:"graph_id"`
	SourceJobID   string        `json:"source_job_id"`
	TerminalID    string        `json:"terminal_id"`
	MaxConcurrent int           `json:"max_concurrent"`
	Layout        graph.Layout  `json:"layout"`
	Job           string        `json:"job"`
	Position      int           `json:"position"`
	Total         int           `json:"total"`
	Node          graph.JobNode `json:"node"`
}

// MessageWriter is the part of *kafka.Writer the submitter uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubmitter publishes one message per node in topological order. Every
// message of a graph carries the graph id as its key, so the hash balancer
// puts the whole graph on one partition and consumers see it in order.
type KafkaSubmitter struct {
	writer   MessageWriter
	ledger   Ledger
	strategy retry.Strategy
	log      *logging.Logger
}

// NewKafkaWriter returns a writer for cfg.Kafka.SubmitTopic.
func NewKafkaWriter(cfg *config.Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.SubmitTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaSubmitter wires w and ledger. A nil log discards output.
func NewKafkaSubmitter(w MessageWriter, ledger Ledger, s retry.Strategy, log *logging.Logger) *KafkaSubmitter {
	if log == nil {
		log = logging.Discard()
	}
	return &KafkaSubmitter{writer: w, ledger: ledger, strategy: s, log: log}
}

// Submit claims the graph, publishes every node and marks each submitted.
// A failed publish releases the claim so the event can be retried.
func (k *KafkaSubmitter) Submit(ctx context.Context, g *graph.JobGraph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	order, err := g.TopoOrder()
	if err != nil {
		return err
	}

	ok, err := k.ledger.Claim(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("claim graph %s: %w", g.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadySubmitted, g.ID)
	}

	msgs := make([]kafka.Message, 0, len(order))
	for i, n := range order {
		data, err := json.Marshal(NodeMessage{
			GraphID:       g.ID,
			SourceJobID:   g.SourceJobID,
			TerminalID:    g.TerminalID,
			MaxConcurrent: g.MaxConcurrent,
			Layout:        g.Layout,
			Job:           g.FarmJob(n),
			Position:      i,
			Total:         len(order),
			Node:          *n,
		})
		if err != nil {
			k.release(ctx, g.ID)
			return fmt.Errorf("marshal node %s: %w", n.Name, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(g.ID), Value: data})
	}

	err = retry.Do(func() error {
		return k.writer.WriteMessages(ctx, msgs...)
	}, k.strategy)
	if err != nil {
		k.release(ctx, g.ID)
		return fmt.Errorf("publish graph %s: %w", g.ID, err)
	}

	for _, n := range order {
		if err := k.ledger.SetStatus(ctx, g.ID, n.ID, StatusSubmitted); err != nil {
			k.log.Warn("Cannot record status of %s: %v", n.Name, err)
		}
	}
	k.log.Success("Submitted %d node(s) of graph %s", len(order), g.ID)
	return nil
}

func (k *KafkaSubmitter) release(ctx context.Context, id string) {
	if err := k.ledger.Release(ctx, id); err != nil {
		k.log.Warn("Cannot release claim on %s: %v", id, err)
	}
}

// Close closes the writer.
func (k *KafkaSubmitter) Close() error { return k.writer.Close() }
