//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"immimate/internal/audit"
	"immimate/pkg/testutil/containers"
)

type KafkaStoreSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaStoreSuite) TestPublishedEventsReachTopic() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "audit-" + uuid.NewString()

	store, err := audit.NewKafkaStore(ctx, s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	defer store.Close()

	// Creating the topic twice is fine.
	again, err := audit.NewKafkaStore(ctx, s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	again.Close()

	user := uuid.New()
	p := audit.NewPublisher(store)
	s.Require().NoError(p.Emit(ctx, audit.Event{Action: audit.EventDraftSaved, UserID: user, FormID: "f1"}))
	s.Require().NoError(p.Emit(ctx, audit.Event{Action: audit.EventProfileSubmitted, UserID: user, Subject: "p1"}))
	s.Require().NoError(p.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []audit.Event
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			s.Equal(user.String(), string(r.Key))
			var e audit.Event
			s.Require().NoError(json.Unmarshal(r.Value, &e))
			got = append(got, e)
		})
	}
	s.Equal(audit.EventDraftSaved, got[0].Action)
	s.Equal("f1", got[0].FormID)
	s.Equal(audit.EventProfileSubmitted, got[1].Action)
	s.Equal("p1", got[1].Subject)
}
