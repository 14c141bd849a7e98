package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"sitewatch/internal/dispatch"
	"sitewatch/internal/testutil"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := dispatch.NewBus(&testutil.DummyLogger{})

	var got []dispatch.Message
	bus.Subscribe(dispatch.TopicSiteChecks, func(_ context.Context, msg dispatch.Message) error {
		got = append(got, msg)
		return nil
	})

	id, err := bus.Publish(context.Background(), dispatch.TopicSiteChecks, []byte("payload"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Error("expected a message id")
	}
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].ID != id {
		t.Errorf("delivered id = %q, want %q", got[0].ID, id)
	}
	if string(got[0].Data) != "payload" {
		t.Errorf("delivered data = %q", got[0].Data)
	}
	if got[0].PublishedAt.IsZero() {
		t.Error("PublishedAt should be set")
	}
}

func TestPublishIsolatesTopics(t *testing.T) {
	bus := dispatch.NewBus(&testutil.DummyLogger{})

	var siteChecks, alerts int
	bus.Subscribe(dispatch.TopicSiteChecks, func(context.Context, dispatch.Message) error {
		siteChecks++
		return nil
	})
	bus.Subscribe(dispatch.TopicAlerts, func(context.Context, dispatch.Message) error {
		alerts++
		return nil
	})

	if _, err := bus.Publish(context.Background(), dispatch.TopicAlerts, []byte("{}")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if siteChecks != 0 || alerts != 1 {
		t.Errorf("deliveries = (site-checks: %d, alerts: %d), want (0, 1)", siteChecks, alerts)
	}
}

func TestHandlerErrorDoesNotFailPublish(t *testing.T) {
	logger := &testutil.DummyLogger{}
	bus := dispatch.NewBus(logger)

	var secondRan bool
	bus.Subscribe(dispatch.TopicAlerts, func(context.Context, dispatch.Message) error {
		return errors.New("handler exploded")
	})
	bus.Subscribe(dispatch.TopicAlerts, func(context.Context, dispatch.Message) error {
		secondRan = true
		return nil
	})

	id, err := bus.Publish(context.Background(), dispatch.TopicAlerts, []byte("{}"))
	if err != nil {
		t.Fatalf("Publish: %v (handler errors must not propagate)", err)
	}
	if id == "" {
		t.Error("expected a message id despite handler failure")
	}
	if !secondRan {
		t.Error("later handlers must still run after one fails")
	}
	if len(logger.Errors) != 1 {
		t.Errorf("logged errors = %d, want 1", len(logger.Errors))
	}
}

func TestPublishWithoutSubscribersSucceeds(t *testing.T) {
	bus := dispatch.NewBus(&testutil.DummyLogger{})

	id, err := bus.Publish(context.Background(), "nobody-home", []byte("x"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Error("expected a message id")
	}
}

func TestSubscribeIgnoresNilHandler(t *testing.T) {
	bus := dispatch.NewBus(&testutil.DummyLogger{})
	bus.Subscribe(dispatch.TopicAlerts, nil)

	if _, err := bus.Publish(context.Background(), dispatch.TopicAlerts, []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
