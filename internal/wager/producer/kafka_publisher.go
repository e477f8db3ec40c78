package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/feed"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
	"github.com/radieske/sports-wager-engine/pkg/contracts/topics"
)

// MessageWriter é satisfeito por *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Broadcaster empurra o evento para o feed em tempo real
type Broadcaster interface {
	Broadcast(ctx context.Context, u feed.Update) error
}

// Publisher publica wager_created / wager_graded no Kafka e, se configurado, no feed
type Publisher struct {
	created MessageWriter
	graded  MessageWriter
	feed    Broadcaster
	log     *zap.Logger
	now     func() time.Time
}

// New cria o publisher; qualquer writer pode ser nil (evento não publicado)
func New(created, graded MessageWriter, fb Broadcaster, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{created: created, graded: graded, feed: fb, log: log, now: time.Now}
}

func key(id int64) []byte { return []byte(strconv.FormatInt(id, 10)) }

// PublishCreated atende workflow.Publisher
func (p *Publisher) PublishCreated(ctx context.Context, w *wager.Wager) error {
	ev := events.WagerCreated{
		EventID:     uuid.NewString(),
		WagerID:     w.ID,
		OwnerID:     w.OwnerID,
		GroupID:     w.GroupID,
		Kind:        w.Kind.String(),
		Units:       w.Units.String(),
		Odds:        w.Odds,
		Destination: w.Destination,
		TsUnixMs:    p.now().UnixMilli(),
	}
	for _, l := range w.Legs {
		ev.Legs = append(ev.Legs, events.LegSummary{
			Position:    l.Position,
			GameID:      l.Game.ID,
			League:      l.League,
			LineType:    l.LineType,
			Description: l.Description,
			Odds:        l.Odds,
		})
	}
	return p.publish(ctx, p.created, topics.WagerCreated, w, ev)
}

// PublishGraded atende settlement.Publisher
func (p *Publisher) PublishGraded(ctx context.Context, w *wager.Wager) error {
	ev := events.WagerGraded{
		EventID:     uuid.NewString(),
		WagerID:     w.ID,
		OwnerID:     w.OwnerID,
		GroupID:     w.GroupID,
		Status:      string(w.Status),
		Units:       w.Units.String(),
		ResultValue: w.ResultValue.String(),
		Description: w.ResultDescription,
		Ts:          p.now(),
	}
	return p.publish(ctx, p.graded, topics.WagerGraded, w, ev)
}

func (p *Publisher) publish(ctx context.Context, wr MessageWriter, topic string, w *wager.Wager, ev any) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if wr != nil {
		msg := kafka.Message{Key: key(w.ID), Value: value, Time: p.now()}
		if err := wr.WriteMessages(ctx, msg); err != nil {
			p.log.Error("failed to publish wager event", zap.String("topic", topic), zap.Int64("wagerId", w.ID), zap.Error(err))
			return err
		}
		p.log.Debug("published wager event", zap.String("topic", topic), zap.Int64("wagerId", w.ID))
	}
	if p.feed != nil {
		// feed é best effort; o Kafka é a fonte do evento
		if err := p.feed.Broadcast(ctx, feed.Update{GroupID: w.GroupID, Type: topic, Payload: ev}); err != nil {
			p.log.Warn("feed broadcast failed", zap.Int64("wagerId", w.ID), zap.Error(err))
		}
	}
	return nil
}
