package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"
	"devdash/internal/infrastructure/telemetry"
	"devdash/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTopic = "devdash-events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes snapshot and contract discovery events to one topic.
type Producer struct {
	writer messageWriter
	topic  string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 500 * time.Millisecond,
	}
	return newProducer(writer, cfg.Topic), nil
}

func newProducer(writer messageWriter, topic string) *Producer {
	if strings.TrimSpace(topic) == "" {
		topic = defaultTopic
	}
	return &Producer{writer: writer, topic: topic}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishSnapshot(ctx context.Context, snap application.Snapshot) error {
	ctx, span := startPublishSpan(ctx, "devdash.publish_snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chain.id", int64(snap.Network.ChainID)),
		attribute.String("session.id", snap.SessionID),
		attribute.Int64("session.cycle", int64(snap.Cycle)),
		attribute.Int64("block.number", int64(snap.Network.LatestBlock)),
	)

	traceIDHex := ""
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceIDHex = sc.TraceID().String()
	}
	payload, err := streaming.Encode(streaming.Message{
		Type:         streaming.MessageTypeSnapshot,
		ChainID:      snap.Network.ChainID,
		TraceID:      traceIDHex,
		SessionID:    snap.SessionID,
		Cycle:        snap.Cycle,
		Endpoint:     snap.Endpoint,
		BlockNumber:  snap.Network.LatestBlock,
		AccountCount: len(snap.Accounts),
		TxCount:      len(snap.Transactions),
	})
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(fmt.Sprintf("snapshot:%d", snap.Network.ChainID)),
		Value:   payload,
		Headers: headers,
	})
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func (p *Producer) PublishContracts(ctx context.Context, chainID uint64, contracts []domain.ContractRecord) error {
	if len(contracts) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(contracts))
	spans := make([]trace.Span, 0, len(contracts))
	for _, contract := range contracts {
		traceCtx := ctx
		traceIDHex := ""
		if traceID, hexID, ok := telemetry.NewTraceID(); ok {
			if spanCtx, ok := telemetry.NewSpanContext(traceID); ok {
				traceCtx = trace.ContextWithSpanContext(ctx, spanCtx)
				traceIDHex = hexID
			}
		}
		traceCtx, span := startPublishSpan(traceCtx, "devdash.publish_contract")
		span.SetAttributes(
			attribute.Int64("chain.id", int64(chainID)),
			attribute.Int64("block.number", int64(contract.BlockNumber)),
			attribute.String("contract.address", contract.Address),
		)

		payload, err := streaming.Encode(streaming.Message{
			Type:        streaming.MessageTypeContract,
			ChainID:     chainID,
			TraceID:     traceIDHex,
			BlockNumber: contract.BlockNumber,
			Address:     contract.Address,
			Name:        contract.Name,
			Deployer:    contract.Deployer,
			TxHash:      contract.DeploymentTx,
			CodeHash:    contract.CodeHash,
			SizeBytes:   contract.SizeBytes,
			Verified:    contract.Verified,
		})
		if err != nil {
			recordSpanError(span, err)
			span.End()
			for _, s := range spans {
				s.End()
			}
			return err
		}
		headers := make([]kafka.Header, 0, 2)
		telemetry.InjectKafkaHeaders(traceCtx, &headers)
		messages = append(messages, kafka.Message{
			Topic:   p.topic,
			Key:     []byte(contract.Address),
			Value:   payload,
			Headers: headers,
		})
		spans = append(spans, span)
	}
	err := p.writer.WriteMessages(ctx, messages...)
	for _, span := range spans {
		if err != nil {
			recordSpanError(span, err)
		}
		span.End()
	}
	return err
}

func startPublishSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("devdash/kafka").Start(ctx, name, trace.WithSpanKind(trace.SpanKindProducer))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
