// Package gesture turns press, drag and release events into recorder
// start and stop calls, with drag-left to cancel.
package gesture

import (
	"context"
	"sync"

	"ecochat/log"
)

type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
)

type Event string

const (
	EventPress     Event = "press"
	EventMove      Event = "move"
	EventRelease   Event = "release"
	EventTerminate Event = "terminate"
)

// Recorder is the capture the gesture drives. Stop on an idle recorder
// must be a no-op.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type action func(c *Controller, x float64) State

// transitions covers every state and event pair.
var transitions = map[State]map[Event]action{
	StateIdle: {
		EventPress:     (*Controller).begin,
		EventMove:      stay(StateIdle),
		EventRelease:   stay(StateIdle),
		EventTerminate: stay(StateIdle),
	},
	StateCapturing: {
		EventPress:     stay(StateCapturing),
		EventMove:      (*Controller).drag,
		EventRelease:   (*Controller).end,
		EventTerminate: (*Controller).end,
	},
}

func stay(s State) action {
	return func(*Controller, float64) State { return s }
}

// Controller owns the gesture state. Events may arrive from several
// goroutines (terminal mouse, global hotkey).
type Controller struct {
	ctx       context.Context
	rec       Recorder
	threshold float64

	mu        sync.Mutex
	state     State
	startX    float64
	cancelled bool
	stops     sync.WaitGroup
}

// NewController cancels a capture once the pointer moves more than
// threshold units left of where it was pressed. ctx bounds the recorder
// calls the controller makes.
func NewController(ctx context.Context, rec Recorder, threshold float64) *Controller {
	return &Controller{ctx: ctx, rec: rec, threshold: threshold, state: StateIdle}
}

func (c *Controller) Press(x float64) { c.handle(EventPress, x) }
func (c *Controller) Move(x float64)  { c.handle(EventMove, x) }
func (c *Controller) Release()        { c.handle(EventRelease, 0) }
func (c *Controller) Terminate()      { c.handle(EventTerminate, 0) }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancelled reports whether the current gesture crossed the cancel line.
func (c *Controller) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Wait blocks until every stop the controller issued has returned.
func (c *Controller) Wait() {
	c.stops.Wait()
}

func (c *Controller) handle(ev Event, x float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := transitions[c.state][ev](c, x)
	if next != c.state {
		log.Infof("gesture %s: %s -> %s", ev, c.state, next)
	}
	c.state = next
}

func (c *Controller) begin(x float64) State {
	c.startX = x
	c.cancelled = false
	if err := c.rec.Start(c.ctx); err != nil {
		log.Warnf("gesture start: %v", err)
		return StateIdle
	}
	return StateCapturing
}

func (c *Controller) drag(x float64) State {
	if dx := x - c.startX; dx < -c.threshold && !c.cancelled {
		c.cancelled = true
		log.Info("gesture_cancel")
		c.stop()
	}
	return StateCapturing
}

func (c *Controller) end(float64) State {
	if !c.cancelled {
		c.stop()
	}
	return StateIdle
}

// stop runs off the event path since the recorder uploads before returning.
func (c *Controller) stop() {
	c.stops.Add(1)
	go func() {
		defer c.stops.Done()
		c.rec.Stop(c.ctx)
	}()
}
