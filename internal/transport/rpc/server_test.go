package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simp-lee/usersvc/internal/domain"
)

const (
	testStream = "users.requests"
	testGroup  = "users"
)

func newTestServer(t *testing.T, logBuf *bytes.Buffer) (*Server, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })

	d := NewDispatcher(nil)
	d.Handle("find_one_user", func(ctx context.Context, payload json.RawMessage) (any, error) {
		id, err := Payload[string](payload)
		if err != nil {
			return nil, err
		}
		if id != "u1" {
			return nil, domain.UserNotFound(id)
		}
		return map[string]string{"id": id}, nil
	})
	d.Handle("explode", func(ctx context.Context, payload json.RawMessage) (any, error) {
		panic("boom")
	})

	logger := slog.New(slog.NewTextHandler(logBuf, nil))
	s := NewServer(rdb, d, ServerConfig{Stream: testStream, Group: testGroup, Consumer: "c1"}, logger)
	return s, mock
}

func requestEntry(t *testing.T, id string, req Request) redis.XMessage {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]any{messageField: string(b)}}
}

func replyValues(t *testing.T, reply Reply) []any {
	t.Helper()
	b, err := json.Marshal(reply)
	require.NoError(t, err)
	return []any{messageField, string(b)}
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(nil, NewDispatcher(nil), ServerConfig{}, nil)
	assert.EqualValues(t, 10, s.cfg.BatchSize)
	assert.Equal(t, 5*time.Second, s.cfg.Block)
	assert.Equal(t, 30*time.Second, s.cfg.HandlerTimeout)
	assert.NoError(t, s.Close(context.Background()), "closing a server that never started is a no-op")
}

func TestServer_EnsureGroup(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	mock.ExpectXGroupCreateMkStream(testStream, testGroup, "0").SetVal("OK")
	require.NoError(t, s.ensureGroup(context.Background()))

	mock.ExpectXGroupCreateMkStream(testStream, testGroup, "0").SetErr(errors.New("BUSYGROUP Consumer Group name already exists"))
	require.NoError(t, s.ensureGroup(context.Background()), "an existing group is not an error")

	mock.ExpectXGroupCreateMkStream(testStream, testGroup, "0").SetErr(errors.New("WRONGTYPE"))
	require.Error(t, s.ensureGroup(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_StartFailsWithoutGroup(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	mock.ExpectXGroupCreateMkStream(testStream, testGroup, "0").SetErr(errors.New("NOAUTH"))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create consumer group")
}

func TestServer_HandleMessage_Success(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	msg := requestEntry(t, "1-0", Request{ID: "r1", Pattern: "find_one_user", Payload: json.RawMessage(`"u1"`), ReplyTo: "rpc.replies.r1"})

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "rpc.replies.r1",
		Values: replyValues(t, Reply{ID: "r1", Data: json.RawMessage(`{"id":"u1"}`)}),
	}).SetVal("1-0")
	mock.ExpectExpire("rpc.replies.r1", replyTTL).SetVal(true)
	mock.ExpectXAck(testStream, testGroup, "1-0").SetVal(1)

	s.handleMessage(context.Background(), msg)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logBuf.String(), "pattern=find_one_user")
}

func TestServer_HandleMessage_ErrorReply(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	msg := requestEntry(t, "2-0", Request{ID: "r2", Pattern: "find_one_user", Payload: json.RawMessage(`"nope"`), ReplyTo: "rpc.replies.r2"})

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "rpc.replies.r2",
		Values: replyValues(t, Reply{ID: "r2", Error: &ErrorBody{Message: "User with id nope not found", Status: http.StatusBadRequest}}),
	}).SetVal("2-0")
	mock.ExpectExpire("rpc.replies.r2", replyTTL).SetVal(true)
	mock.ExpectXAck(testStream, testGroup, "2-0").SetVal(1)

	s.handleMessage(context.Background(), msg)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logBuf.String(), "level=WARN")
}

func TestServer_HandleMessage_PanicBecomesInternalError(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	msg := requestEntry(t, "3-0", Request{ID: "r3", Pattern: "explode", ReplyTo: "rpc.replies.r3"})

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "rpc.replies.r3",
		Values: replyValues(t, Reply{ID: "r3", Error: &ErrorBody{Message: "internal server error", Status: http.StatusInternalServerError}}),
	}).SetVal("3-0")
	mock.ExpectExpire("rpc.replies.r3", replyTTL).SetVal(true)
	mock.ExpectXAck(testStream, testGroup, "3-0").SetVal(1)

	s.handleMessage(context.Background(), msg)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logBuf.String(), "panic recovered")
}

func TestServer_HandleMessage_NoReplyTo(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	msg := requestEntry(t, "4-0", Request{ID: "r4", Pattern: "find_one_user", Payload: json.RawMessage(`"u1"`)})
	mock.ExpectXAck(testStream, testGroup, "4-0").SetVal(1)

	s.handleMessage(context.Background(), msg)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_HandleMessage_MalformedIsAcked(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	mock.ExpectXAck(testStream, testGroup, "5-0").SetVal(1)
	s.handleMessage(context.Background(), redis.XMessage{ID: "5-0", Values: map[string]any{"other": "x"}})

	mock.ExpectXAck(testStream, testGroup, "6-0").SetVal(1)
	s.handleMessage(context.Background(), redis.XMessage{ID: "6-0", Values: map[string]any{messageField: "{bad"}})

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logBuf.String(), "dropping malformed rpc message")
}

func TestServer_ReadBatch(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	readArgs := &redis.XReadGroupArgs{
		Group:    testGroup,
		Consumer: "c1",
		Streams:  []string{testStream, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}

	mock.ExpectXReadGroup(readArgs).RedisNil()
	require.NoError(t, s.readBatch(context.Background()))

	msg := requestEntry(t, "7-0", Request{ID: "r7", Pattern: "find_one_user", Payload: json.RawMessage(`"u1"`)})
	mock.ExpectXReadGroup(readArgs).SetVal([]redis.XStream{{Stream: testStream, Messages: []redis.XMessage{msg}}})
	mock.ExpectXAck(testStream, testGroup, "7-0").SetVal(1)
	require.NoError(t, s.readBatch(context.Background()))

	mock.ExpectXReadGroup(readArgs).SetErr(errors.New("LOADING"))
	require.Error(t, s.readBatch(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_HandleMessage_SurvivesShutdown(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	started := make(chan struct{})
	release := make(chan struct{})
	type observed struct {
		err         error
		hasDeadline bool
	}
	seen := make(chan observed, 1)
	s.dispatcher.Handle("slow_create", func(ctx context.Context, payload json.RawMessage) (any, error) {
		close(started)
		<-release
		_, ok := ctx.Deadline()
		seen <- observed{err: ctx.Err(), hasDeadline: ok}
		return map[string]string{"id": "u9"}, nil
	})

	msg := requestEntry(t, "9-0", Request{ID: "r9", Pattern: "slow_create", ReplyTo: "rpc.replies.r9"})
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "rpc.replies.r9",
		Values: replyValues(t, Reply{ID: "r9", Data: json.RawMessage(`{"id":"u9"}`)}),
	}).SetVal("9-0")
	mock.ExpectExpire("rpc.replies.r9", replyTTL).SetVal(true)
	mock.ExpectXAck(testStream, testGroup, "9-0").SetVal(1)

	loopCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleMessage(loopCtx, msg)
	}()

	<-started
	stop()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleMessage did not return")
	}

	got := <-seen
	assert.NoError(t, got.err, "stopping the read loop must not cancel a running handler")
	assert.True(t, got.hasDeadline, "handlers run under the per-message timeout")
	assert.NoError(t, mock.ExpectationsWereMet(), "the reply and ack are still sent")
}

func TestServer_HandleBatch_StopsBetweenMessagesOnShutdown(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := requestEntry(t, "10-0", Request{ID: "r10", Pattern: "find_one_user", Payload: json.RawMessage(`"u1"`)})
	s.handleBatch(ctx, []redis.XMessage{msg})

	assert.NoError(t, mock.ExpectationsWereMet(), "an unstarted entry stays pending and is not acked")
}

func TestServer_DrainPending(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	pendingArgs := func(start string) *redis.XReadGroupArgs {
		return &redis.XReadGroupArgs{
			Group:    testGroup,
			Consumer: "c1",
			Streams:  []string{testStream, start},
			Count:    10,
			Block:    -1,
		}
	}

	first := requestEntry(t, "11-0", Request{ID: "r11", Pattern: "find_one_user", Payload: json.RawMessage(`"u1"`)})
	second := requestEntry(t, "12-0", Request{ID: "r12", Pattern: "find_one_user", Payload: json.RawMessage(`"u1"`)})

	mock.ExpectXReadGroup(pendingArgs("0")).SetVal([]redis.XStream{{Stream: testStream, Messages: []redis.XMessage{first, second}}})
	mock.ExpectXAck(testStream, testGroup, "11-0").SetVal(1)
	// A failed ack leaves the entry pending; the drain still moves past it.
	mock.ExpectXAck(testStream, testGroup, "12-0").SetErr(errors.New("READONLY"))
	mock.ExpectXReadGroup(pendingArgs("12-0")).SetVal([]redis.XStream{{Stream: testStream}})

	require.NoError(t, s.drainPending(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, logBuf.String(), "rpc serving pending messages")
	assert.Contains(t, logBuf.String(), "rpc ack failed")
}

func TestServer_DrainPending_ReadError(t *testing.T) {
	var logBuf bytes.Buffer
	s, mock := newTestServer(t, &logBuf)

	mock.ExpectXReadGroup(&redis.XReadGroupArgs{
		Group:    testGroup,
		Consumer: "c1",
		Streams:  []string{testStream, "0"},
		Count:    10,
		Block:    -1,
	}).SetErr(errors.New("NOGROUP"))

	err := s.drainPending(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read from stream")
}
