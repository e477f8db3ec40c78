package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/settlement"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// MessageReader é satisfeito por *kafka.Reader
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter é satisfeito por *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Grader é o settlement engine
type Grader interface {
	Grade(ctx context.Context, id int64, signals []settlement.LegSignal) (*wager.Wager, error)
}

// Processor consome outcomes de pernas e avalia as apostas.
// Falha de persistência tem retry; conflito, validação ou mensagem inválida vão direto para a DLQ.
type Processor struct {
	Log    *zap.Logger
	Reader MessageReader
	Grader Grader
	DLQ    MessageWriter // opcional

	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas
	OnGraded   func()       // métricas
	OnDLQ      func(string) // métricas por motivo
	OnError    func(string) // métricas por fase
}

// Run inicia o loop de consumo até o contexto ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		if err := p.Handle(ctx, m); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Handle processa uma mensagem. Devolve o último erro de grade, já tratado (DLQ ou log).
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	var ev events.LegOutcomes
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.Log.Warn("invalid leg outcomes message", zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m, "decode", err)
		return err
	}

	signals := make([]settlement.LegSignal, len(ev.Signals))
	for i, s := range ev.Signals {
		signals[i] = settlement.LegSignal{Position: s.Position, Outcome: settlement.Outcome(s.Outcome)}
	}

	err := p.grade(ctx, ev.WagerID, signals)
	switch {
	case err == nil:
		if p.OnGraded != nil {
			p.OnGraded()
		}
		return nil
	case errors.Is(err, wager.ErrGradingConflict):
		p.deadLetter(ctx, m, "conflict", err)
	case errors.Is(err, wager.ErrValidation):
		p.deadLetter(ctx, m, "validation", err)
	case errors.Is(err, wager.ErrNotFound):
		p.deadLetter(ctx, m, "not_found", err)
	default:
		p.deadLetter(ctx, m, "persistence", err)
	}
	p.Log.Error("grade from outcomes failed",
		zap.Int64("wagerId", ev.WagerID),
		zap.String("eventId", ev.EventID),
		zap.String("source", ev.Source),
		zap.Error(err),
	)
	return err
}

// grade repete só falhas transitórias (persistência)
func (p *Processor) grade(ctx context.Context, id int64, signals []settlement.LegSignal) error {
	_, err := p.Grader.Grade(ctx, id, signals)
	for i := 0; i < p.Retries && err != nil && errors.Is(err, wager.ErrPersistence); i++ {
		p.fail("grade_retry")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Backoff * time.Duration(i+1)):
		}
		_, err = p.Grader.Grade(ctx, id, signals)
	}
	return err
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, reason string, cause error) {
	if p.OnDLQ != nil {
		p.OnDLQ(reason)
	}
	if p.DLQ == nil {
		return
	}
	dlq := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "dlq_reason", Value: []byte(reason)},
			{Key: "dlq_error", Value: []byte(cause.Error())},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(m.Offset, 10))},
		},
	}
	if err := p.DLQ.WriteMessages(ctx, dlq); err != nil {
		p.Log.Error("dlq write failed", zap.String("reason", reason), zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
