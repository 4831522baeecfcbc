// Package chat holds one conversation with the sustainability assistant.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ecochat/log"
)

var (
	ErrSelectionInFlight = errors.New("category selection already in progress")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrClosed            = errors.New("chat session closed")
)

const (
	MsgSelectFirst    = "Please select a category first."
	MsgSelectFailed   = "Error selecting category. Please try again."
	MsgSendFailed     = "An error occurred. Please try again."
	msgSelectedFormat = "You selected %s. You can now ask questions."
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type Message struct {
	ID     uuid.UUID
	Sender Sender
	Text   string
	At     time.Time
}

// Backend is the part of the HTTP API a conversation needs.
type Backend interface {
	Chat(ctx context.Context, input string) (string, error)
	SelectCategory(ctx context.Context, category string) error
	EndSession(ctx context.Context) error
}

// Snapshot is a copy of the visible conversation state.
type Snapshot struct {
	Messages  []Message
	Category  Category
	Typing    bool
	Selecting bool
	Input     string
}

// Session is one conversation. Replies are appended in the order they
// complete. After Close no reply changes the session.
type Session struct {
	backend  Backend
	onChange func()

	alive context.Context
	kill  context.CancelFunc

	mu        sync.Mutex
	messages  []Message
	category  Category
	selecting bool
	pending   int
	input     string
}

// NewSession builds a session. onChange, if set, is called after every
// visible mutation, outside the session lock.
func NewSession(backend Backend, onChange func()) *Session {
	alive, kill := context.WithCancel(context.Background())
	if onChange == nil {
		onChange = func() {}
	}
	return &Session{backend: backend, onChange: onChange, alive: alive, kill: kill}
}

func newMessage(sender Sender, text string) Message {
	return Message{ID: uuid.New(), Sender: sender, Text: text, At: time.Now().UTC()}
}

// mutate applies fn under the lock unless the session is closed, and
// reports whether it ran.
func (s *Session) mutate(fn func()) bool {
	s.mu.Lock()
	if s.alive.Err() != nil {
		s.mu.Unlock()
		return false
	}
	fn()
	s.mu.Unlock()
	s.onChange()
	return true
}

func (s *Session) appendLocked(sender Sender, text string) {
	s.messages = append(s.messages, newMessage(sender, text))
	log.Exchange(string(sender), text)
}

// SelectCategory asks the backend to switch data sets and resets the
// conversation to a single acknowledgement or error bubble.
func (s *Session) SelectCategory(ctx context.Context, cat Category) error {
	if !cat.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}

	var busy bool
	ok := s.mutate(func() {
		if s.selecting {
			busy = true
			return
		}
		s.selecting = true
	})
	if !ok {
		return ErrClosed
	}
	if busy {
		return ErrSelectionInFlight
	}

	err := s.backend.SelectCategory(ctx, string(cat))
	if err != nil {
		log.Errorf("select_category %s: %v", cat, err)
	}

	// The category sticks even when the backend refused it; sends keep
	// going to the chat endpoint.
	s.mutate(func() {
		s.selecting = false
		s.messages = nil
		s.category = cat
		if err != nil {
			s.appendLocked(SenderBot, MsgSelectFailed)
			return
		}
		s.appendLocked(SenderBot, fmt.Sprintf(msgSelectedFormat, cat))
	})
	return err
}

// Send posts one user turn. Blank text is ignored. Without a category a
// local notice is appended and nothing is sent.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var noCategory bool
	ok := s.mutate(func() {
		if s.category == "" {
			noCategory = true
			s.appendLocked(SenderBot, MsgSelectFirst)
			return
		}
		s.appendLocked(SenderUser, text)
		s.input = ""
		s.pending++
	})
	if !ok || noCategory {
		return nil
	}

	reply, err := s.backend.Chat(ctx, text)
	if err != nil {
		log.Errorf("chat: %v", err)
	}

	s.mutate(func() {
		s.pending--
		if err != nil {
			s.appendLocked(SenderBot, MsgSendFailed)
			return
		}
		s.appendLocked(SenderBot, reply)
	})
	return err
}

// Submit sends the current input buffer.
func (s *Session) Submit(ctx context.Context) error {
	return s.Send(ctx, s.Input())
}

func (s *Session) SetInput(text string) {
	s.mutate(func() { s.input = text })
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) Category() Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Messages:  append([]Message(nil), s.messages...),
		Category:  s.category,
		Typing:    s.pending > 0,
		Selecting: s.selecting,
		Input:     s.input,
	}
}

// Back leaves the conversation: the transcript and category are cleared
// and the backend drops its session state.
func (s *Session) Back(ctx context.Context) error {
	var had bool
	s.mutate(func() {
		had = s.category != "" || len(s.messages) > 0
		s.messages = nil
		s.category = ""
		s.input = ""
	})
	if !had {
		return nil
	}
	if err := s.backend.EndSession(ctx); err != nil {
		log.Warnf("end_session: %v", err)
		return err
	}
	return nil
}

// Close detaches the session from any request still in flight.
func (s *Session) Close() {
	s.mu.Lock()
	n := len(s.messages)
	s.kill()
	s.mu.Unlock()
	log.SessionEnd(n)
}

func (s *Session) Closed() bool {
	return s.alive.Err() != nil
}
