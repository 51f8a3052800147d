package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/metrics"
	"github.com/unclebandit/campaign-messaging/internal/model"
	"github.com/unclebandit/campaign-messaging/internal/provider"
	"github.com/unclebandit/campaign-messaging/internal/queue"
	"github.com/unclebandit/campaign-messaging/internal/repository"
	"github.com/unclebandit/campaign-messaging/internal/telemetry"
)

type WorkerConfig struct {
	Consumer     string
	BlockTimeout time.Duration
	ErrorBackoff time.Duration
	ClaimMinIdle time.Duration
	ClaimBatch   int
}

// Worker processes send jobs from the queue, one at a time.
type Worker struct {
	Queue       queue.Queue
	MessageRepo repository.MessageRepositoryInterface
	ClientRepo  repository.ClientRepositoryInterface
	Provider    provider.Provider
	Config      WorkerConfig
	Log         *zap.Logger

	tracer trace.Tracer
}

// Constructor
func NewWorker(q queue.Queue, store *repository.Store, p provider.Provider, cfg WorkerConfig, log *zap.Logger) *Worker {
	if cfg.ClaimBatch < 1 {
		cfg.ClaimBatch = 1
	}
	return &Worker{
		Queue:       q,
		MessageRepo: store.Messages,
		ClientRepo:  store.Clients,
		Provider:    p,
		Config:      cfg,
		Log:         log,
		tracer:      otel.Tracer(telemetry.TracerName),
	}
}

// Run consumes until ctx is cancelled. Infrastructure errors are logged and
// followed by a fixed pause; they never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	log := w.Log.With(zap.String("consumer", w.Config.Consumer))

	for {
		err := w.Queue.EnsureGroup(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		metrics.WorkerErrors.Inc()
		log.Error("failed to ensure consumer group", zap.Error(err))
		w.pause(ctx)
	}

	w.reclaim(ctx, log)
	log.Info("worker started")

	for {
		if ctx.Err() != nil {
			log.Info("worker stopped")
			return nil
		}

		d, err := w.Queue.ReadNext(ctx, w.Config.Consumer, w.Config.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			metrics.WorkerErrors.Inc()
			log.Error("queue read failed", zap.Error(err))
			w.pause(ctx)
			continue
		}
		if d == nil {
			// idle: pick up entries abandoned by failed attempts or dead consumers
			w.reclaim(ctx, log)
			continue
		}

		if err := w.Process(ctx, *d); err != nil {
			if ctx.Err() != nil {
				continue
			}
			metrics.WorkerErrors.Inc()
			log.Error("job processing failed",
				zap.String("stream_id", d.ID),
				zap.String("message_id", d.Job.MessageID),
				zap.Error(err),
			)
			w.pause(ctx)
		}
	}
}

// reclaim processes entries that stayed pending for at least ClaimMinIdle,
// whoever read them first.
func (w *Worker) reclaim(ctx context.Context, log *zap.Logger) {
	for ctx.Err() == nil {
		claimed, err := w.Queue.ClaimStale(ctx, w.Config.Consumer, w.Config.ClaimMinIdle, w.Config.ClaimBatch)
		if err != nil {
			metrics.WorkerErrors.Inc()
			log.Error("failed to claim pending entries", zap.Error(err))
			return
		}
		if len(claimed) == 0 {
			return
		}
		log.Info("reclaimed pending entries", zap.Int("count", len(claimed)))
		for _, d := range claimed {
			if err := w.Process(ctx, d); err != nil {
				metrics.WorkerErrors.Inc()
				log.Error("reclaimed job failed",
					zap.String("stream_id", d.ID),
					zap.String("message_id", d.Job.MessageID),
					zap.Error(err),
				)
			}
		}
		if len(claimed) < w.Config.ClaimBatch {
			return
		}
	}
}

func (w *Worker) pause(ctx context.Context) {
	t := time.NewTimer(w.Config.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process handles one delivery and acknowledges it. A returned error means
// the entry was left pending and will be delivered again.
func (w *Worker) Process(ctx context.Context, d queue.Delivery) (err error) {
	ctx, span := w.tracer.Start(ctx, "worker.process", trace.WithAttributes(
		attribute.String("queue.entry_id", d.ID),
		attribute.String("message.id", d.Job.MessageID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := w.Log.With(zap.String("stream_id", d.ID), zap.String("message_id", d.Job.MessageID))

	if d.Invalid != nil {
		log.Warn("dropping malformed job", zap.Error(d.Invalid))
		metrics.MessagesProcessed.WithLabelValues("invalid").Inc()
		return w.Queue.Ack(ctx, d.ID)
	}

	msg, err := w.MessageRepo.GetByMessageID(ctx, d.Job.MessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		log.Warn("no message record for job, dropping")
		metrics.MessagesProcessed.WithLabelValues("missing").Inc()
		return w.Queue.Ack(ctx, d.ID)
	}
	if !msg.Pending() {
		log.Info("message already processed, acknowledging", zap.String("status", string(msg.Status)))
		metrics.MessagesProcessed.WithLabelValues("duplicate").Inc()
		return w.Queue.Ack(ctx, d.ID)
	}

	phone := d.Job.ClientPhone
	if phone == "" {
		phone = msg.ClientPhone
	}
	log = log.With(zap.String("phone", phone))

	if err := w.MessageRepo.UpdateByMessageID(ctx, msg.MessageID, model.StatusUpdate(model.StatusSending)); err != nil {
		return err
	}

	client, err := w.ClientRepo.GetByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if !client.CanReceive() {
		u := model.StatusUpdate(model.StatusSkippedOptOut).WithError(model.ErrorCodeConsentRequired)
		if err := w.MessageRepo.UpdateByMessageID(ctx, msg.MessageID, u); err != nil {
			return err
		}
		log.Info("recipient has not opted in, skipped")
		metrics.MessagesProcessed.WithLabelValues(string(model.StatusSkippedOptOut)).Inc()
		return w.Queue.Ack(ctx, d.ID)
	}

	var u model.MessageUpdate
	sid, sendErr := w.Provider.Send(ctx, phone, d.Job.TemplateBody)
	var providerErr *provider.SendError
	if sendErr != nil && ctx.Err() != nil && !errors.As(sendErr, &providerErr) {
		// shutting down before the provider answered: leave the entry pending
		return ctx.Err()
	}
	// the provider has answered; record it even if shutdown started meanwhile
	ctx = context.WithoutCancel(ctx)

	if sendErr != nil {
		span.RecordError(sendErr)
		u = model.StatusUpdate(model.StatusFailed).WithError(provider.Detail(sendErr))
		log.Warn("send failed", zap.Error(sendErr))
	} else {
		u = model.StatusUpdate(model.StatusSent).WithProviderSID(sid).WithErrorCode(nil)
		span.SetAttributes(attribute.String("provider.sid", sid))
		log.Info("message sent", zap.String("provider_sid", sid))
	}

	if err := w.MessageRepo.UpdateByMessageID(ctx, msg.MessageID, u); err != nil {
		return err
	}
	metrics.MessagesProcessed.WithLabelValues(string(u.Status)).Inc()
	return w.Queue.Ack(ctx, d.ID)
}
