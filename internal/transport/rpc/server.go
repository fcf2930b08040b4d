package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/simp-lee/logger"
)

// replyTTL bounds how long an unread reply stream is kept.
const replyTTL = time.Minute

const defaultHandlerTimeout = 30 * time.Second

// ServerConfig configures the consumer group the Server reads from.
type ServerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
	// HandlerTimeout bounds one message, from dispatch to acknowledgement.
	HandlerTimeout time.Duration
}

// Server consumes requests from a Redis stream consumer group and answers
// them through a Dispatcher.
type Server struct {
	client     redis.Cmdable
	dispatcher *Dispatcher
	cfg        ServerConfig
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewServer creates a Server. Zero BatchSize, Block and HandlerTimeout
// default to 10, 5s and 30s.
func NewServer(client redis.Cmdable, dispatcher *Dispatcher, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		client:     client,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start creates the consumer group if needed and serves requests in a
// background goroutine until Close is called or ctx is done. Entries this
// consumer read but never acknowledged are served first.
func (s *Server) Start(ctx context.Context) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		defer close(s.done)
		s.serve(ctx)
	}()

	s.logger.Info("rpc server started",
		slog.String("stream", s.cfg.Stream),
		slog.String("group", s.cfg.Group),
		slog.String("consumer", s.cfg.Consumer),
		slog.Any("patterns", s.dispatcher.Patterns()),
	)
	return nil
}

// Close stops the read loop and waits for the message being handled to be
// answered and acknowledged, or for ctx to expire. Handlers are not cancelled.
// The unhandled rest of a batch stays pending and is served on the next Start.
func (s *Server) Close(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.once.Do(s.cancel)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (s *Server) serve(ctx context.Context) {
	if err := s.drainPending(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("rpc pending drain failed", slog.Any("error", err))
	}
	for {
		if ctx.Err() != nil {
			s.logger.Info("rpc server stopped", slog.String("stream", s.cfg.Stream))
			return
		}
		if err := s.readBatch(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("rpc read failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (s *Server) readBatch(ctx context.Context) error {
	msgs, err := s.read(ctx, ">", s.cfg.Block)
	if err != nil {
		return err
	}
	s.handleBatch(ctx, msgs)
	return nil
}

// drainPending serves the entries delivered to this consumer before a restart
// that were never acknowledged. It walks the pending list by id so an entry
// whose ack keeps failing is not read twice.
func (s *Server) drainPending(ctx context.Context) error {
	start := "0"
	for ctx.Err() == nil {
		// A history read never blocks; -1 omits BLOCK from the command.
		msgs, err := s.read(ctx, start, -1)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		s.logger.Info("rpc serving pending messages", slog.Int("count", len(msgs)))
		s.handleBatch(ctx, msgs)
		start = msgs[len(msgs)-1].ID
	}
	return nil
}

func (s *Server) read(ctx context.Context, start string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, start},
		Count:    s.cfg.BatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, stream := range streams {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs, nil
}

// handleBatch stops between messages once ctx is done; the rest stay pending.
func (s *Server) handleBatch(ctx context.Context, msgs []redis.XMessage) {
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		s.handleMessage(ctx, msg)
	}
}

// handleMessage dispatches one entry, publishes the reply and acknowledges
// the entry. Undecodable entries are acknowledged and dropped.
//
// The work runs detached from ctx's cancellation so shutdown lets a started
// request finish; HandlerTimeout bounds it instead.
func (s *Server) handleMessage(ctx context.Context, msg redis.XMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HandlerTimeout)
	defer cancel()
	ctx = logger.WithContextAttrs(ctx, slog.String("message_id", msg.ID))

	req, err := decodeRequest(msg)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping malformed rpc message", slog.Any("error", err))
		s.ack(ctx, msg.ID)
		return
	}

	start := time.Now()
	reply := s.execute(ctx, req)

	attrs := []slog.Attr{
		slog.String("pattern", req.Pattern),
		slog.Duration("latency", time.Since(start)),
	}
	if reply.Error != nil {
		attrs = append(attrs, slog.Int("status", reply.Error.Status), slog.String("error", reply.Error.Message))
		level := slog.LevelWarn
		if reply.Error.Status >= 500 {
			level = slog.LevelError
		}
		s.logger.LogAttrs(ctx, level, "rpc request", attrs...)
	} else {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "rpc request", attrs...)
	}

	if req.ReplyTo != "" {
		if err := s.publishReply(ctx, req.ReplyTo, reply); err != nil {
			s.logger.ErrorContext(ctx, "rpc reply failed", slog.String("reply_to", req.ReplyTo), slog.Any("error", err))
		}
	}
	s.ack(ctx, msg.ID)
}

// execute runs the handler, converting panics into internal errors.
func (s *Server) execute(ctx context.Context, req Request) (reply Reply) {
	reply.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "panic recovered", slog.Any("panic", r), slog.String("pattern", req.Pattern))
			reply.Data = nil
			reply.Error = NewErrorBody(nil)
		}
	}()

	result, err := s.dispatcher.Dispatch(ctx, req.Pattern, req.Payload)
	if err != nil {
		reply.Error = NewErrorBody(err)
		return reply
	}
	data, err := json.Marshal(result)
	if err != nil {
		reply.Error = NewErrorBody(err)
		return reply
	}
	reply.Data = data
	return reply
}

func (s *Server) publishReply(ctx context.Context, stream string, reply Reply) error {
	b, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: []any{messageField, string(b)},
	}).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, stream, replyTTL).Err()
}

func (s *Server) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err(); err != nil {
		s.logger.ErrorContext(ctx, "rpc ack failed", slog.Any("error", err))
	}
}

func decodeRequest(msg redis.XMessage) (Request, error) {
	var req Request
	raw, ok := msg.Values[messageField].(string)
	if !ok {
		return req, fmt.Errorf("entry %s has no %q field", msg.ID, messageField)
	}
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return req, fmt.Errorf("decode entry %s: %w", msg.ID, err)
	}
	if req.Pattern == "" {
		return req, fmt.Errorf("entry %s has no pattern", msg.ID)
	}
	return req, nil
}
