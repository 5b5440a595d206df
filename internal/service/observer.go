package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
	"github.com/alanyoungcy/ticketraffle/internal/metrics"
	"github.com/alanyoungcy/ticketraffle/internal/server/ws"
)

// EventStream is the durable stream every event is appended to.
const EventStream = "raffle:stream"

const defaultQueueSize = 1024

// RoundSource answers the lookups needed to archive a settled round.
type RoundSource interface {
	Round(roundID uint64) (domain.Round, error)
	Holdings(roundID uint64) ([]domain.Holding, error)
	Reward(roundID uint64) (domain.RewardRecord, error)
}

// SaleLister lists the committed sales of a round.
type SaleLister interface {
	ListSales(ctx context.Context, roundID uint64) ([]domain.Sale, error)
}

// Broadcaster pushes an encoded event to local WebSocket clients.
type Broadcaster interface {
	Broadcast(kind domain.EventKind, data []byte)
}

// Announcer forwards events to people, e.g. chat notifications.
type Announcer interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// ObserverConfig wires an Observer. Every collaborator is optional.
type ObserverConfig struct {
	Bus       domain.SignalBus
	Hub       Broadcaster // used when there is no bus
	Audit     domain.AuditStore
	Announcer Announcer
	Archiver  domain.Archiver
	Sales     SaleLister
	QueueSize int
	Logger    *slog.Logger
}

// Observer receives committed raffle events and fans them out off the
// operation path: bus, stream, audit log, notifications and round archives.
type Observer struct {
	cfg     ObserverConfig
	rounds  RoundSource
	queue   chan []domain.Event
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewObserver creates an Observer. Call Run to start delivery.
func NewObserver(cfg ObserverConfig) *Observer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		cfg:    cfg,
		queue:  make(chan []domain.Event, cfg.QueueSize),
		logger: logger.With(slog.String("component", "observer")),
	}
}

// BindRounds sets the source used to assemble round archives. It must be
// called before Run when an Archiver is configured.
func (o *Observer) BindRounds(src RoundSource) {
	o.rounds = src
}

// Publish records metrics and queues the batch. It never blocks; a full
// queue drops the batch.
func (o *Observer) Publish(ctx context.Context, events []domain.Event) {
	metrics.Observe(events)
	select {
	case o.queue <- events:
	default:
		o.dropped.Add(1)
		o.logger.WarnContext(ctx, "observer queue full, dropping events", slog.Int("count", len(events)))
	}
}

// Dropped is the number of batches lost to a full queue.
func (o *Observer) Dropped() uint64 {
	return o.dropped.Load()
}

// Run delivers queued batches until ctx is cancelled, then flushes what is
// already queued.
func (o *Observer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flush := context.WithoutCancel(ctx)
			for {
				select {
				case batch := <-o.queue:
					o.deliver(flush, batch)
				default:
					return nil
				}
			}
		case batch := <-o.queue:
			o.deliver(ctx, batch)
		}
	}
}

func (o *Observer) deliver(ctx context.Context, batch []domain.Event) {
	for _, ev := range batch {
		payload, err := json.Marshal(ev)
		if err != nil {
			o.logger.ErrorContext(ctx, "marshal event", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
			continue
		}
		o.fanOut(ctx, ev, payload)
		if ev.Kind == domain.EventWinner {
			o.archive(ctx, ev.RoundID)
		}
	}
	if o.cfg.Announcer != nil {
		if err := o.cfg.Announcer.Publish(ctx, batch); err != nil {
			o.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
		}
	}
}

func (o *Observer) fanOut(ctx context.Context, ev domain.Event, payload []byte) {
	switch {
	case o.cfg.Bus != nil:
		if err := o.cfg.Bus.Publish(ctx, ws.EventsChannel, payload); err != nil {
			o.logger.WarnContext(ctx, "publish event failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
		}
		if err := o.cfg.Bus.StreamAppend(ctx, EventStream, payload); err != nil {
			o.logger.WarnContext(ctx, "stream append failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
		}
	case o.cfg.Hub != nil:
		o.cfg.Hub.Broadcast(ev.Kind, payload)
	}

	if o.cfg.Audit != nil {
		detail, err := auditDetail(payload)
		if err != nil {
			o.logger.WarnContext(ctx, "audit detail decode failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
		}
		if err := o.cfg.Audit.Log(ctx, string(ev.Kind), detail); err != nil {
			o.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}

// auditDetail decodes an event payload for the audit log. Undecodable
// payloads are kept verbatim under "raw".
func auditDetail(payload []byte) (map[string]any, error) {
	var detail map[string]any
	if err := json.Unmarshal(payload, &detail); err != nil {
		return map[string]any{"raw": string(payload)}, err
	}
	return detail, nil
}

func (o *Observer) archive(ctx context.Context, roundID uint64) {
	if o.cfg.Archiver == nil || o.rounds == nil {
		return
	}
	log := o.logger.With(slog.Uint64("round", roundID))

	ar, err := o.roundArchive(ctx, roundID)
	if err != nil {
		log.ErrorContext(ctx, "assemble round archive", slog.String("error", err.Error()))
		return
	}
	path, err := o.cfg.Archiver.ArchiveRound(ctx, ar)
	if err != nil {
		log.ErrorContext(ctx, "archive round", slog.String("error", err.Error()))
		return
	}
	log.InfoContext(ctx, "round archived", slog.String("path", path))
	if o.cfg.Audit != nil {
		if err := o.cfg.Audit.Log(ctx, "round_archived", map[string]any{"round_id": roundID, "path": path}); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}

func (o *Observer) roundArchive(ctx context.Context, roundID uint64) (domain.RoundArchive, error) {
	round, err := o.rounds.Round(roundID)
	if err != nil {
		return domain.RoundArchive{}, err
	}
	holdings, err := o.rounds.Holdings(roundID)
	if err != nil {
		return domain.RoundArchive{}, err
	}
	reward, err := o.rounds.Reward(roundID)
	if err != nil {
		return domain.RoundArchive{}, err
	}
	ar := domain.RoundArchive{Round: round, Holdings: holdings, Reward: reward}
	if o.cfg.Sales != nil {
		if ar.Sales, err = o.cfg.Sales.ListSales(ctx, roundID); err != nil {
			return domain.RoundArchive{}, err
		}
	}
	return ar, nil
}
