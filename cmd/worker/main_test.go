package main

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

// scriptedReader returns the queued results, then cancels the context and blocks on it.
type scriptedReader struct {
	results []error
	values  [][]byte
	cancel  context.CancelFunc
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.results) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	err, v := r.results[0], r.values[0]
	r.results, r.values = r.results[1:], r.values[1:]
	return kafka.Message{Value: v}, err
}

type recordingPusher struct {
	lines [][]byte
	fail  bool
}

func (p *recordingPusher) PushEventJSON(_ context.Context, raw []byte) error {
	p.lines = append(p.lines, raw)
	if p.fail {
		return errors.New("loki down")
	}
	return nil
}

func TestConsume_PushesAndSkipsReadErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &scriptedReader{
		results: []error{nil, errors.New("broker gone"), nil},
		values:  [][]byte{[]byte(`{"type":"auth.login.succeeded"}`), nil, []byte(`{"type":"auth.logout"}`)},
		cancel:  cancel,
	}
	pusher := &recordingPusher{}

	n := consume(ctx, reader, pusher)
	assert.Equal(t, 2, n)
	assert.Len(t, pusher.lines, 2)
}

func TestConsume_PushFailureNotCounted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &scriptedReader{results: []error{nil}, values: [][]byte{[]byte(`{}`)}, cancel: cancel}
	pusher := &recordingPusher{fail: true}

	assert.Equal(t, 0, consume(ctx, reader, pusher))
	assert.Len(t, pusher.lines, 1)
}
