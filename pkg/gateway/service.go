package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tipbot/pkg/bus"
	"tipbot/pkg/channel"
	"tipbot/pkg/command"
	"tipbot/pkg/config"
	"tipbot/pkg/logger"
	"tipbot/pkg/payment"
	"tipbot/pkg/txn"
)

const (
	defaultHealthHost   = "0.0.0.0"
	defaultHealthPort   = 18790
	healthCheckInterval = 30 * time.Second
)

// Parser turns a chat message into a command.
type Parser interface {
	Parse(ctx context.Context, msg command.Message, room command.Room) (command.Command, error)
}

// Executor runs a parsed command.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (command.Reply, error)
}

// HealthChecker reports whether the wallet service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the long-lived collaborators built once at startup and shared by
// every message. All of them are safe for concurrent use.
type Deps struct {
	Parser       Parser
	Executor     Executor
	Wallet       HealthChecker
	Bus          *bus.MessageBus
	Transactions *txn.Cache
}

type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	deps     Deps
	channels []channel.Adapter

	mu             sync.RWMutex
	startedAt      time.Time
	walletLastOKAt time.Time
	walletLastErr  string
	channelStates  map[string]channelState
	counters       map[bus.EventType]int64
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status         string                  `json:"status"`
	UptimeSeconds  int64                   `json:"uptime_seconds"`
	WalletLastOKAt string                  `json:"wallet_last_ok_at,omitempty"`
	WalletLastErr  string                  `json:"wallet_last_error,omitempty"`
	Channels       map[string]channelState `json:"channels"`
	Commands       map[string]int64        `json:"commands,omitempty"`
}

func NewService(cfg *config.Config, adapters []channel.Adapter, deps Deps, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if deps.Parser == nil || deps.Executor == nil {
		return nil, errors.New("parser and executor are required")
	}
	if deps.Bus == nil {
		deps.Bus = bus.NewMessageBus()
	}
	if deps.Transactions == nil {
		deps.Transactions = txn.NewCache(txn.DefaultCapacity)
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           logger.Component(log, "gateway.service"),
		deps:          deps,
		channels:      adapters,
		channelStates: channelStates,
		counters:      make(map[bus.EventType]int64),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkWalletHealth(ctx); err != nil {
		return err
	}

	events, unsubscribe := s.deps.Bus.SubscribeEvents(ctx, 0)
	defer unsubscribe()
	go s.countEvents(events)

	serverErrors := make(chan error, 1)
	go s.runHTTPServer(ctx, serverErrors)

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.checkWalletHealth(ctx)
			}
		}
	}()

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// handleInbound runs one message through parse → execute and maps every
// failure to a user-facing reply. Failures are logged here, so the returned
// error is always nil.
func (s *Service) handleInbound(ctx context.Context, room channel.Room, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	outbound := bus.OutboundMessage{
		Channel: inbound.Channel,
		ChatID:  inbound.ChatID,
		ReplyTo: inbound.EventID,
	}
	log := s.log.With("channel", inbound.Channel, "chat_id", inbound.ChatID, "sender", inbound.SenderID, "event_id", inbound.EventID)

	if inbound.AddressedToBot {
		outbound.Content = replyBotIntro
		return outbound, nil
	}

	cmd, err := s.deps.Parser.Parse(ctx, command.Message{
		Sender:    inbound.SenderID,
		Body:      inbound.Content,
		Formatted: inbound.FormattedContent,
		ReplyTo:   inbound.ReplyToEventID,
	}, room)
	if err != nil {
		log.Warn("Could not parse command", "error", err)
		outbound.Error = replyNotUnderstood
		if errors.Is(err, command.ErrUnresolvedRecipient) {
			outbound.Error = replyUnresolved
		}
		s.publish(ctx, inbound, bus.EventCommandRejected, "", err)
		return outbound, nil
	}
	if command.IsNone(cmd) {
		return outbound, nil
	}

	s.publish(ctx, inbound, bus.EventCommandReceived, cmd.Name(), nil)

	reply, err := s.deps.Executor.Execute(ctx, cmd)
	if err != nil {
		log.Error("Command failed", "command", cmd.Name(), "category", payment.CategoryFromError(err), "error", err)
		outbound.Error = replyProblem
		s.publish(ctx, inbound, bus.EventCommandFailed, cmd.Name(), err)
		return outbound, nil
	}

	log.Info("Command completed", "command", cmd.Name())
	s.publish(ctx, inbound, bus.EventCommandCompleted, cmd.Name(), nil)

	outbound.Content = reply.Text
	outbound.Image = reply.Image
	return outbound, nil
}

func (s *Service) publish(ctx context.Context, inbound bus.InboundMessage, eventType bus.EventType, name string, err error) {
	s.deps.Bus.PublishEvent(ctx, bus.Event{
		Type:    eventType,
		Channel: inbound.Channel,
		ChatID:  inbound.ChatID,
		Sender:  inbound.SenderID,
		Command: name,
		Error:   errorString(err),
	})
}

func (s *Service) countEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		s.counters[event.Type]++
		s.mu.Unlock()
	}
}

func (s *Service) runHTTPServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	commands := make(map[string]int64, len(s.counters))
	for eventType, n := range s.counters {
		commands[string(eventType)] = n
	}

	walletLastOK := ""
	if !s.walletLastOKAt.IsZero() {
		walletLastOK = s.walletLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:         status,
		UptimeSeconds:  uptime,
		WalletLastOKAt: walletLastOK,
		WalletLastErr:  s.walletLastErr,
		Channels:       channels,
		Commands:       commands,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}

	if !anyRunning {
		return false
	}

	if s.walletLastOKAt.IsZero() {
		return false
	}

	return s.walletLastErr == ""
}

// checkWalletHealth records wallet-service reachability. Without a checker
// the wallet is assumed healthy.
func (s *Service) checkWalletHealth(ctx context.Context) error {
	if s.deps.Wallet != nil {
		if err := s.deps.Wallet.Health(ctx); err != nil {
			s.mu.Lock()
			s.walletLastErr = err.Error()
			s.mu.Unlock()
			return fmt.Errorf("wallet health check failed: %w", err)
		}
	}

	s.mu.Lock()
	s.walletLastErr = ""
	s.walletLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

// Handler exposes the per-message pipeline for callers that drive a single
// adapter themselves, such as the local console.
func (s *Service) Handler() channel.Handler {
	return s.handleInbound
}
