// Path: internal/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chanbroker/internal/broker"
	"chanbroker/internal/domain"
	"chanbroker/internal/logger"
)

// Service is the central orchestrator of the daemon: it owns the broker and
// keeps the channel catalog in step with it.
type Service struct {
	defaultChannels []string
	broker          *broker.Broker
	catalog         ChannelCatalog
	logger          *slog.Logger
}

// NewService creates a new core application service.
func NewService(
	defaultChannels []string,
	b *broker.Broker,
	catalog ChannelCatalog,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		defaultChannels: defaultChannels,
		broker:          b,
		catalog:         catalog,
		logger:          log.With(logger.Component("service")),
	}
}

// Start recreates the channels recorded in the catalog, then makes sure every
// default channel exists.
func (s *Service) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "service starting")

	records, err := s.catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("could not load channel catalog: %w", err)
	}
	for _, r := range records {
		if err := s.broker.CreateChannel(ctx, r.Name); err != nil && !errors.Is(err, broker.ErrChannelAlreadyExists) {
			return fmt.Errorf("could not restore channel %q: %w", r.Name, err)
		}
	}
	s.logger.InfoContext(ctx, "channel catalog restored", logger.Count("channels", len(records)))

	for _, name := range s.defaultChannels {
		err := s.CreateChannel(ctx, name)
		if err != nil && !errors.Is(err, broker.ErrChannelAlreadyExists) {
			return fmt.Errorf("could not create default channel %q: %w", name, err)
		}
	}
	return nil
}

// CreateChannel creates the channel and records it in the catalog. A catalog
// failure is logged; the channel stays usable for this process.
func (s *Service) CreateChannel(ctx context.Context, name string) error {
	if err := s.broker.CreateChannel(ctx, name); err != nil {
		return err
	}
	if err := s.catalog.Save(ctx, domain.NewChannelRecord(name)); err != nil {
		s.logger.WarnContext(ctx, "channel not persisted", logger.Channel(name), logger.Error(err))
	}
	return nil
}

// Subscribe delegates to the broker.
func (s *Service) Subscribe(ctx context.Context, channel string) (broker.SubscriberID, *broker.Endpoint, error) {
	return s.broker.Subscribe(ctx, channel)
}

// Unsubscribe delegates to the broker.
func (s *Service) Unsubscribe(ctx context.Context, channel string, id broker.SubscriberID) error {
	return s.broker.Unsubscribe(ctx, channel, id)
}

// Publish delegates to the broker.
func (s *Service) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.broker.Publish(ctx, channel, payload)
}

// Channels provides a read-only view of the registry for the delivery layer.
func (s *Service) Channels() []broker.ChannelInfo {
	return s.broker.Channels()
}
