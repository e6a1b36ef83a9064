package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/crypto"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
)

// State of a login attempt
type State int

const (
	Idle State = iota
	PopupOpened
	TokensReceived
	Stored
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PopupOpened:
		return "popup_opened"
	case TokensReceived:
		return "tokens_received"
	case Stored:
		return "stored"
	case Failed:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrPopupBlocked is returned when no window handle could be created
	ErrPopupBlocked = errors.New("login popup was blocked")
	// ErrRelayTimeout is returned when no tokens arrive in time
	ErrRelayTimeout = errors.New("login timed out")
	// ErrStoreFailed wraps a persistence failure
	ErrStoreFailed = errors.New("could not save login")
)

// Window is a handle on the popup
type Window interface {
	Close()
}

// Persister stores a delivered payload, normally by calling the store endpoint
type Persister interface {
	Persist(ctx context.Context, payload Payload) error
}

// PersisterFunc adapts a function to Persister
type PersisterFunc func(ctx context.Context, payload Payload) error

func (f PersisterFunc) Persist(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}

// AttemptConfig configures an Attempt
type AttemptConfig struct {
	Policy      OriginPolicy
	MessageType string
	Persister   Persister
	Timeout     time.Duration
	// OnSuccess runs after the pair is stored
	OnSuccess func(Payload)
	Now       func() time.Time
}

// Attempt owns one login attempt: the popup handle, the listener state and
// the outcome. Only one popup is live at a time. templates/relay.js runs the
// same machine in the opener window; keep their transitions in step.
type Attempt struct {
	mu        sync.Mutex
	cfg       AttemptConfig
	state     State
	popup     Window
	err       error
	deadline  time.Time
	delivered string
}

// NewAttempt creates an idle attempt
func NewAttempt(cfg AttemptConfig) *Attempt {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Attempt{cfg: cfg}
}

// State returns the current state
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the error that moved the attempt to Failed
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Open starts a new attempt. Any previous popup is closed first. open
// returning nil means the browser blocked the popup.
func (a *Attempt) Open(open func() Window) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.popup != nil {
		a.popup.Close()
		a.popup = nil
	}
	a.err = nil
	a.delivered = ""

	w := open()
	if w == nil {
		a.fail(ErrPopupBlocked)
		return ErrPopupBlocked
	}

	a.popup = w
	a.state = PopupOpened
	if a.cfg.Timeout > 0 {
		a.deadline = a.cfg.Now().Add(a.cfg.Timeout)
	} else {
		a.deadline = time.Time{}
	}
	return nil
}

// Deliver handles one incoming message. It returns true when the message
// caused the pair to be persisted. Foreign or unrelated messages and
// repeats of an already stored payload are dropped without changing state.
func (a *Attempt) Deliver(ctx context.Context, origin string, raw []byte) (bool, error) {
	if !a.cfg.Policy.Allows(origin) {
		log.LogTraceWithFields("relay", "Dropped message from foreign origin", map[string]any{
			"origin": origin,
		})
		return false, nil
	}
	msg, ok := ParseMessage(raw, a.cfg.MessageType)
	if !ok {
		return false, nil
	}

	a.mu.Lock()
	stored, err := a.deliverLocked(ctx, msg.Payload)
	a.mu.Unlock()

	if stored && err == nil && a.cfg.OnSuccess != nil {
		a.cfg.OnSuccess(msg.Payload)
	}
	return stored, err
}

func (a *Attempt) deliverLocked(ctx context.Context, payload Payload) (bool, error) {
	if a.expiredLocked() {
		return false, ErrRelayTimeout
	}

	key := crypto.TokenFingerprint(payload.Access + "\x00" + payload.Refresh)
	switch a.state {
	case Idle, Failed:
		return false, nil
	case Stored:
		if key == a.delivered {
			// already persisted; nothing to redo
			return false, nil
		}
	}

	a.state = TokensReceived
	if err := a.cfg.Persister.Persist(ctx, payload); err != nil {
		err = fmt.Errorf("%w: %v", ErrStoreFailed, err)
		a.fail(err)
		return false, err
	}

	a.state = Stored
	a.delivered = key
	if a.popup != nil {
		a.popup.Close()
		a.popup = nil
	}
	return true, nil
}

// Expire fails an attempt whose deadline has passed. It reports whether the
// attempt timed out.
func (a *Attempt) Expire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expiredLocked()
}

func (a *Attempt) expiredLocked() bool {
	if a.state != PopupOpened || a.deadline.IsZero() || a.cfg.Now().Before(a.deadline) {
		return a.state == Failed && errors.Is(a.err, ErrRelayTimeout)
	}
	if a.popup != nil {
		a.popup.Close()
		a.popup = nil
	}
	a.fail(ErrRelayTimeout)
	return true
}

// Reset returns the attempt to Idle so the user can retry
func (a *Attempt) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.popup != nil {
		a.popup.Close()
		a.popup = nil
	}
	a.state = Idle
	a.err = nil
	a.deadline = time.Time{}
}

func (a *Attempt) fail(err error) {
	a.state = Failed
	a.err = err
	log.LogDebugWithFields("relay", "Login attempt failed", map[string]any{
		"error": err.Error(),
	})
}
