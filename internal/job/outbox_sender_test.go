package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"wagerledger/internal/model"
	"wagerledger/internal/repository"

	"go.uber.org/zap/zaptest"
)

type fakeProducer struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (p *fakeProducer) SendMessage(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, key)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestOutboxSenderDelivers(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewOutboxRepository(10)
	producer := &fakeProducer{}
	sender := NewOutboxSender(repo, producer, 0, 3, zaptest.NewLogger(t))

	for _, k := range []string{"TXN1", "TXN2"} {
		if err := repo.Publish(ctx, "ledger", k, map[string]string{"event": model.EventTransactionRequested}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	sender.processPendingMessages(ctx)

	if len(producer.sent) != 2 || producer.sent[0] != "TXN1" {
		t.Fatalf("unexpected deliveries %v", producer.sent)
	}
	if repo.Len() != 0 {
		t.Fatalf("sent messages must leave the outbox, len=%d", repo.Len())
	}
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewOutboxRepository(10)
	producer := &fakeProducer{fail: true}
	sender := NewOutboxSender(repo, producer, 0, 3, zaptest.NewLogger(t))

	if err := repo.Publish(ctx, "ledger", "TXN1", map[string]string{}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i := 0; i < 2; i++ {
		sender.processPendingMessages(ctx)
		pending, _ := repo.GetPendingMessages(ctx, 0)
		if len(pending) != 1 || pending[0].RetryCount != i+1 {
			t.Fatalf("round %d: pending=%+v", i, pending)
		}
	}

	sender.processPendingMessages(ctx)
	pending, _ := repo.GetPendingMessages(ctx, 0)
	failed, _ := repo.GetFailedMessages(ctx, 0)
	if len(pending) != 0 || len(failed) != 1 || failed[0].RetryCount != 3 {
		t.Fatalf("expected FAILED after 3 attempts: pending=%+v failed=%+v", pending, failed)
	}

	// 失败的消息不再重发
	producer.fail = false
	sender.processPendingMessages(ctx)
	if len(producer.sent) != 0 {
		t.Fatalf("failed message resent: %v", producer.sent)
	}
}

func TestOutboxSenderStops(t *testing.T) {
	sender := NewOutboxSender(repository.NewOutboxRepository(1), &fakeProducer{}, 0, 0, zaptest.NewLogger(t))
	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()
	sender.Stop()
	<-done
}
