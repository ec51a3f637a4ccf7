package broker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/email-harvester/config"
	"github.com/IliaW/email-harvester/internal/model"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]kafka.Message(nil), msgs...))
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducerBatches(t *testing.T) {
	t.Parallel()

	cfg := &config.ProducerConfig{
		WriteTopicName: "harvested-emails",
		BatchSize:      2,
		BatchTimeout:   time.Hour,
		WriteTimeout:   time.Second,
	}
	recordChan := make(chan *model.Record, 5)
	writer := &fakeWriter{}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	p := newProducer(recordChan, "run-7", model.Direct, writer, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), wg)
	go p.Run()

	for _, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		recordChan <- &model.Record{SourceURL: u, Emails: []string{"x@" + u[8:]}, Status: model.StatusSuccess}
	}
	close(recordChan)
	wg.Wait()

	if !writer.closed {
		t.Error("writer not closed")
	}
	if len(writer.batches) != 2 || len(writer.batches[0]) != 2 || len(writer.batches[1]) != 1 {
		t.Fatalf("batches = %v", writer.batches)
	}
	last := writer.batches[1][0]
	if string(last.Key) != "https://c.example" {
		t.Errorf("key = %q", last.Key)
	}
	var msg struct {
		RunID     string   `json:"run_id"`
		Mode      string   `json:"mode"`
		SourceURL string   `json:"source_url"`
		Emails    []string `json:"emails"`
	}
	if err := json.Unmarshal(last.Value, &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	if msg.RunID != "run-7" || msg.Mode != "direct" || msg.SourceURL != "https://c.example" || msg.Emails[0] != "x@c.example" {
		t.Errorf("message = %+v", msg)
	}
}
