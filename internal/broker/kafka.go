// Package broker publishes finished records to kafka.
package broker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/email-harvester/config"
	"github.com/IliaW/email-harvester/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageWriter is the part of kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RecordMessage is the payload published for every record.
type RecordMessage struct {
	RunID string `json:"run_id"`
	Mode  string `json:"mode"`
	*model.Record
}

type KafkaProducerClient struct {
	recordChan <-chan *model.Record
	runID      string
	mode       model.Mode
	writer     MessageWriter
	cfg        *config.ProducerConfig
	log        *slog.Logger
	wg         *sync.WaitGroup
}

func NewKafkaProducer(recordChan <-chan *model.Record, runID string, mode model.Mode, cfg *config.ProducerConfig,
	log *slog.Logger, wg *sync.WaitGroup) *KafkaProducerClient {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Addr, ",")...),
		Topic:        cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    1,                // the parameter is controlled by 'batchTicker' variable
		BatchTimeout: time.Millisecond, // the parameter is controlled by 'batch' variable
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAsks),
		Compression:  kafka.Compression(new(lz4.Codec).Code()),
	}

	return newProducer(recordChan, runID, mode, w, cfg, log, wg)
}

func newProducer(recordChan <-chan *model.Record, runID string, mode model.Mode, w MessageWriter,
	cfg *config.ProducerConfig, log *slog.Logger, wg *sync.WaitGroup) *KafkaProducerClient {
	return &KafkaProducerClient{
		recordChan: recordChan,
		runID:      runID,
		mode:       mode,
		writer:     w,
		cfg:        cfg,
		log:        log,
		wg:         wg,
	}
}

// Run sends records from recordChan in batches until the channel is closed. Records left in the
// batch at that point are flushed before the writer is closed.
func (p *KafkaProducerClient) Run() {
	defer p.wg.Done()
	p.log.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))
	defer func() {
		err := p.writer.Close()
		if err != nil {
			p.log.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchTicker := time.NewTicker(p.cfg.BatchTimeout)
	defer batchTicker.Stop()
	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	writeMessage := func(batch []kafka.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		err := p.writer.WriteMessages(ctx, batch...)
		if err != nil {
			p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			return
		}
		p.log.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
	}

	for rec := range p.recordChan {
		body, err := json.Marshal(RecordMessage{RunID: p.runID, Mode: p.mode.String(), Record: rec})
		if err != nil {
			p.log.Error("marshaling error.", slog.String("err", err.Error()), slog.String("url", rec.SourceURL))
			continue
		}
		batch = append(batch, kafka.Message{
			Key:   []byte(rec.SourceURL),
			Value: body,
		})
		select {
		case <-batchTicker.C:
			writeMessage(batch)
			batch = make([]kafka.Message, 0, p.cfg.BatchSize)
		default:
			if len(batch) >= p.cfg.BatchSize {
				writeMessage(batch)
				batch = make([]kafka.Message, 0, p.cfg.BatchSize)
			}
		}
	}
	if len(batch) > 0 {
		p.log.Debug("messages in batch.", slog.Int("count", len(batch)))
		writeMessage(batch)
	}
	p.log.Info("stopping kafka writer.")
}
