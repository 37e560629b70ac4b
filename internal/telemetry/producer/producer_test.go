package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"chabaqa/backend/internal/telemetry/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

type fakeConn struct {
	subjects []string
	data     [][]byte
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeConn) Drain() error { f.drained = true; return nil }

var (
	_ Producer = (*KafkaProducer)(nil)
	_ Producer = (*NATSProducer)(nil)
)

func TestNewKafkaProducer_DisabledWithoutConfig(t *testing.T) {
	if p := NewKafkaProducer(nil, "auth-events"); p != nil {
		t.Error("no brokers should disable the producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("no topic should disable the producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "auth-events"}
	ev := &domain.Event{ID: "e1", Type: domain.EventLoginSucceeded, UserID: "u1", Source: "api"}
	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "u1" {
		t.Errorf("key = %q, want u1", w.msgs[0].Key)
	}
	var got domain.Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != domain.EventLoginSucceeded || got.ID != "e1" {
		t.Errorf("payload = %+v", got)
	}

	w.err = errors.New("broker down")
	if err := p.Emit(context.Background(), ev); err == nil {
		t.Error("write failure should be returned")
	}
	_ = p.Close()
	if !w.closed {
		t.Error("Close should close the writer")
	}
}

func TestNewNATSProducer_EmptyURL(t *testing.T) {
	p, err := NewNATSProducer("", "chabaqa")
	if err != nil || p != nil {
		t.Errorf("NewNATSProducer(\"\") = %v, %v", p, err)
	}
}

func TestNATSProducer_Emit(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSProducer{conn: conn, prefix: "chabaqa."}
	if err := p.Emit(context.Background(), &domain.Event{Type: domain.EventLoggedOut}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(conn.subjects) != 1 || conn.subjects[0] != "chabaqa.auth.logout" {
		t.Errorf("subjects = %v", conn.subjects)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Emit(ctx, &domain.Event{Type: domain.EventLoggedOut}); err == nil {
		t.Error("cancelled context should fail")
	}
	_ = p.Close()
	if !conn.drained {
		t.Error("Close should drain")
	}
}

func TestNATSProducer_DefaultPrefix(t *testing.T) {
	p := &NATSProducer{}
	if got := p.Subject("auth.registered"); got != "chabaqa.auth.registered" {
		t.Errorf("Subject = %q", got)
	}
}
