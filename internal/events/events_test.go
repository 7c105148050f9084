package events

import (
	"context"
	"errors"
	"testing"
)

type recordingPublisher struct {
	got    []*Reply
	err    error
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, ev *Reply) error {
	p.got = append(p.got, ev)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingPublisher{err: boom}
	second := &recordingPublisher{}
	m := Multi{first, second}

	err := m.Publish(context.Background(), &Reply{ID: "ev-1"})
	if !errors.Is(err, boom) {
		t.Errorf("Publish() error = %v, want %v", err, boom)
	}
	if len(second.got) != 1 {
		t.Errorf("second publisher got %d events, want 1", len(second.got))
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !first.closed || !second.closed {
		t.Error("Close() did not close every publisher")
	}
}
