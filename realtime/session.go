package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	errs "github.com/campuslink/campus/errors"
	"github.com/campuslink/campus/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=../mocks/realtime_mock.go -package=mocks github.com/campuslink/campus/realtime TokenVerifier,Authorizer,ConversationStore,MessageNotifier,Transport

// Transport is the session's view of one client connection
type Transport interface {
	Subscriber
	// Receive blocks until the next inbound frame or a transport failure
	Receive() ([]byte, error)
	// Close ends the connection with a close code. Safe to call more than once.
	Close(code int, reason string)
}

type TokenVerifier interface {
	ResolveToken(ctx context.Context, token string) (*models.User, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, user *models.User, chatID uint) (*models.Chat, error)
}

type ConversationStore interface {
	History(ctx context.Context, chatID uint, limit int) ([]models.Message, error)
	Append(ctx context.Context, chatID uint, sender *models.User, content string) (*models.Message, error)
}

// MessageNotifier is told about every message after it was fanned out.
// Implementations must return promptly.
type MessageNotifier interface {
	MessageSent(chat *models.Chat, message *models.Message)
}

type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthorizing
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthorizing:
		return "authorizing"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	errMissingCredential = errors.New("missing credential")
	errPendingOverflow   = errors.New("fan-out backlog exceeded while loading history")
)

const (
	msgMalformed    = `malformed message: expected {"message": "<text>"}`
	msgNotSaved     = "message could not be saved"
	msgNotDelivered = "message saved but could not be delivered"
)

// Relay holds what every chat session shares
type Relay struct {
	verifier     TokenVerifier
	authorizer   Authorizer
	store        ConversationStore
	registry     Registry
	notifier     MessageNotifier
	historyLimit int
	log          *zap.Logger
}

// NewRelay builds a Relay. notifier may be nil.
func NewRelay(verifier TokenVerifier, authorizer Authorizer, store ConversationStore, registry Registry, notifier MessageNotifier, historyLimit int, log *zap.Logger) *Relay {
	return &Relay{
		verifier:     verifier,
		authorizer:   authorizer,
		store:        store,
		registry:     registry,
		notifier:     notifier,
		historyLimit: historyLimit,
		log:          log.Named("relay"),
	}
}

// Session is one client's stay in one chat
type Session struct {
	relay     *Relay
	transport Transport
	log       *zap.Logger
	state     atomic.Int32

	user  *models.User
	chat  *models.Chat
	group string

	// fan-out reaching the session before its history frame went out is
	// held back, then replayed minus what the history already covered
	mu       sync.Mutex
	live     bool
	pending  [][]byte
	overflow bool

	leaveOnce sync.Once
}

var _ Subscriber = (*Session)(nil)

func (r *Relay) NewSession(t Transport) *Session {
	return &Session{
		relay:     r,
		transport: t,
		log:       r.log.With(zap.String("session", t.ID())),
	}
}

func (s *Session) ID() string {
	return s.transport.ID()
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Deliver implements Subscriber
func (s *Session) Deliver(payload []byte) error {
	s.mu.Lock()
	if !s.live {
		if len(s.pending) >= sendBufferSize {
			s.overflow = true
			s.mu.Unlock()
			return ErrSendBufferFull
		}
		s.pending = append(s.pending, payload)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.transport.Deliver(payload)
}

// Run drives the session until the client leaves or ctx ends. The transport
// is always closed on return.
func (s *Session) Run(ctx context.Context, chatParam, credential string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.setState(StateAuthenticating)
	if credential == "" {
		s.fail(CloseMissingCredential, errMissingCredential)
		return
	}
	user, err := s.relay.verifier.ResolveToken(ctx, credential)
	if err != nil {
		s.fail(closeCodeFor(err), err)
		return
	}
	s.user = user
	s.log = s.log.With(zap.Uint("user_id", user.ID))

	s.setState(StateAuthorizing)
	chatID, err := strconv.ParseUint(chatParam, 10, 0)
	if err != nil || chatID == 0 {
		s.fail(CloseConversationNotFound, errs.ErrChatNotFound)
		return
	}
	s.log = s.log.With(zap.Uint64("chat_id", chatID))
	chat, err := s.relay.authorizer.Authorize(ctx, user, uint(chatID))
	if err != nil {
		s.fail(closeCodeFor(err), err)
		return
	}
	s.chat = chat

	if err := s.join(ctx); err != nil {
		s.fail(CloseInternalError, err)
		return
	}
	s.setState(StateJoined)
	s.log.Info("session joined")

	frames := make(chan []byte)
	go s.readPump(ctx, cancel, frames)

	for {
		select {
		case <-ctx.Done():
			s.leave()
			s.setState(StateClosed)
			s.transport.Close(websocket.CloseNormalClosure, "")
			s.log.Info("session closed")
			return
		case data := <-frames:
			s.handle(ctx, data)
		}
	}
}

// join registers the session and sends the history frame before any live
// fan-out reaches the client
func (s *Session) join(ctx context.Context) error {
	s.group = GroupKey(s.chat.ID)
	s.relay.registry.Join(s.group, s)

	history, err := s.relay.store.History(ctx, s.chat.ID, s.relay.historyLimit)
	if err != nil {
		s.leave()
		return err
	}
	payload, err := json.Marshal(newHistoryFrame(history))
	if err != nil {
		s.leave()
		return err
	}

	var lastID uint
	if n := len(history); n > 0 {
		lastID = history[n-1].ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overflow {
		s.pending = nil
		s.leave()
		return errPendingOverflow
	}
	if err := s.transport.Deliver(payload); err != nil {
		s.leave()
		return err
	}
	for _, p := range s.pending {
		if messageID(p) <= lastID {
			continue
		}
		if err := s.transport.Deliver(p); err != nil {
			s.log.Warn("replay pending frame", zap.Error(err))
		}
	}
	s.pending = nil
	s.live = true
	return nil
}

func messageID(payload []byte) uint {
	var frame struct {
		MessageID uint `json:"message_id"`
	}
	_ = json.Unmarshal(payload, &frame)
	return frame.MessageID
}

func (s *Session) readPump(ctx context.Context, cancel context.CancelFunc, frames chan<- []byte) {
	defer cancel()
	for {
		data, err := s.transport.Receive()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("transport read failed", zap.Error(err))
			}
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// handle processes one inbound frame. Persistence and publish finish before
// the next frame is taken, which keeps a sender's messages in order.
func (s *Session) handle(ctx context.Context, data []byte) {
	content, err := parseInbound(data)
	if err != nil {
		s.log.Debug("malformed inbound frame", zap.Error(err))
		s.sendError(msgMalformed)
		return
	}

	message, err := s.relay.store.Append(ctx, s.chat.ID, s.user, content)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("append message", zap.String("kind", "storage"), zap.Error(err))
		s.sendError(msgNotSaved)
		return
	}

	payload, err := json.Marshal(newChatMessageFrame(message, s.user))
	if err != nil {
		s.log.Error("encode chat message", zap.Error(err))
		s.sendError(msgNotDelivered)
		return
	}
	if err := s.relay.registry.Publish(ctx, s.group, payload); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("publish message",
			zap.String("kind", "publish"),
			zap.Uint("message_id", message.ID),
			zap.Error(err))
		s.sendError(msgNotDelivered)
		return
	}

	if s.relay.notifier != nil {
		s.relay.notifier.MessageSent(s.chat, message)
	}
}

func (s *Session) sendError(message string) {
	payload, err := json.Marshal(newErrorFrame(message))
	if err != nil {
		return
	}
	if err := s.transport.Deliver(payload); err != nil {
		s.log.Debug("deliver error frame", zap.Error(err))
	}
}

func (s *Session) leave() {
	s.leaveOnce.Do(func() {
		if s.group != "" {
			s.relay.registry.Leave(s.group, s)
		}
	})
}

// fail ends a session that never joined
func (s *Session) fail(code int, err error) {
	s.setState(StateClosed)
	fields := []zap.Field{
		zap.Int("close_code", code),
		zap.String("kind", CloseReason(code)),
		zap.Error(err),
	}
	if code == CloseInternalError {
		s.log.Error("session rejected", fields...)
	} else {
		s.log.Info("session rejected", fields...)
	}
	s.transport.Close(code, CloseReason(code))
}
