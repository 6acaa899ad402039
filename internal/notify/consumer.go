package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"marketpulse/apps/worker/internal/jobctx"
)

// DeadLetterConsumer surfaces jobs that exhausted their retry budget. It only
// logs; the job row itself stays in the database for operator inspection.
type DeadLetterConsumer struct{}

func NewDeadLetterConsumer() *DeadLetterConsumer {
	return &DeadLetterConsumer{}
}

func (c *DeadLetterConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var ev Event
	if err := json.Unmarshal(m.Body, &ev); err != nil {
		slog.Error("invalid dead-letter message", "error", err)
		return nil // Don't retry invalid messages
	}

	ctx := context.Background()
	if ev.CorrelationID != "" {
		ctx = jobctx.WithCorrelationID(ctx, ev.CorrelationID)
	}
	ctx = jobctx.WithJobID(ctx, ev.JobID)
	ctx = jobctx.WithWorkerID(ctx, ev.WorkerID)

	slog.ErrorContext(ctx, "job dead-lettered",
		"job_type", ev.JobType,
		"status", ev.Status,
		"attempts", ev.Attempts,
		"last_error", string(ev.LastError),
		"dead_at", ev.DeadAt)
	return nil
}

// StartDeadLetterConsumer subscribes HandleMessage to the dead-letter topic.
// Lookupd is preferred; a bare nsqd address works for single-node setups.
func StartDeadLetterConsumer(lookupdHost, nsqdHost string) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(TopicJobsDead, "worker", nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	consumer.AddHandler(NewDeadLetterConsumer())

	if lookupdHost != "" {
		err = consumer.ConnectToNSQLookupd(lookupdHost)
	} else {
		err = consumer.ConnectToNSQD(nsqdHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, err
	}
	return consumer, nil
}
