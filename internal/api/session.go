package api

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/banshee-data/rotation.report/internal/db"
	"github.com/banshee-data/rotation.report/internal/magrev"
	"github.com/banshee-data/rotation.report/internal/timeutil"
	"github.com/banshee-data/rotation.report/internal/units"
)

// ActiveSession describes the counting session currently in progress.
type ActiveSession struct {
	SessionID     string `json:"session_id"`
	Algorithm     string `json:"algorithm"`
	StartedUnixNs int64  `json:"started_unix_ns"`
	// StartCount anchors the session's revolution zero: the detector's
	// lifetime count when the session began.
	StartCount uint64 `json:"-"`
}

// SessionController owns session lifecycle around the detector manager.
// Persistence is optional; without a database sessions still start and
// stop, they just leave no record.
type SessionController struct {
	mu             sync.Mutex
	manager        *magrev.Manager
	store          *db.DB
	writer         *db.EventWriter
	clock          timeutil.Clock
	circumferenceM float64
	active         *ActiveSession
}

// NewSessionController creates a controller. store and writer may be nil.
func NewSessionController(manager *magrev.Manager, store *db.DB, writer *db.EventWriter, clock timeutil.Clock, circumferenceM float64) *SessionController {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SessionController{
		manager:        manager,
		store:          store,
		writer:         writer,
		clock:          clock,
		circumferenceM: circumferenceM,
	}
}

// Start begins a session. Starting while a session is active returns the
// active session unchanged, so repeated start requests are safe.
func (c *SessionController) Start(ctx context.Context) (ActiveSession, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return *c.active, false, nil
	}

	if err := c.manager.Start(); err != nil {
		return ActiveSession{}, false, fmt.Errorf("starting detector: %w", err)
	}

	session := ActiveSession{
		Algorithm:     c.manager.Algorithm(),
		StartedUnixNs: c.clock.Now().UnixNano(),
		StartCount:    c.manager.RevolutionCount(),
	}
	if c.store != nil {
		id, err := c.store.StartSession(ctx, session.Algorithm, session.StartedUnixNs, c.circumferenceM)
		if err != nil {
			return ActiveSession{}, false, err
		}
		session.SessionID = id
	}
	c.active = &session
	log.Printf("[Session] started %s (algorithm=%s)", session.SessionID, session.Algorithm)
	return session, true, nil
}

// Stop ends the active session and persists its totals.
func (c *SessionController) Stop(ctx context.Context) (*db.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return nil, fmt.Errorf("no active session")
	}
	session := *c.active
	c.active = nil

	endedNs := c.clock.Now().UnixNano()
	// A mid-session reset or algorithm switch drops the detector's
	// lifetime count below the session anchor; clamp to zero instead of
	// underflowing.
	var revolutions uint64
	if count := c.manager.RevolutionCount(); count > session.StartCount {
		revolutions = count - session.StartCount
	}
	distance := units.DistanceM(revolutions, c.circumferenceM)

	result := &db.Session{
		SessionID:      session.SessionID,
		Algorithm:      session.Algorithm,
		StartedUnixNs:  session.StartedUnixNs,
		EndedUnixNs:    &endedNs,
		Revolutions:    revolutions,
		CircumferenceM: c.circumferenceM,
		DistanceM:      distance,
	}
	if c.store != nil {
		if err := c.store.EndSession(ctx, session.SessionID, endedNs, revolutions, distance); err != nil {
			return nil, err
		}
	}
	log.Printf("[Session] stopped %s: %d revolutions, %.1f m", session.SessionID, revolutions, distance)
	return result, nil
}

// Active returns a copy of the active session, or nil.
func (c *SessionController) Active() *ActiveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	session := *c.active
	return &session
}

// CircumferenceM returns the configured wheel circumference.
func (c *SessionController) CircumferenceM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circumferenceM
}

// SetCircumferenceM updates the wheel circumference for future sessions.
func (c *SessionController) SetCircumferenceM(m float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circumferenceM = m
}

// HandleRevolution receives detector revolution events and queues them
// for persistence against the active session. Events outside a session
// are discarded.
func (c *SessionController) HandleRevolution(e magrev.RevolutionEvent) {
	c.mu.Lock()
	session := c.active
	writer := c.writer
	c.mu.Unlock()

	if session == nil || writer == nil || session.SessionID == "" {
		return
	}
	if e.Count <= session.StartCount {
		return
	}
	row := db.RevolutionEventRow{
		SessionID:  session.SessionID,
		Revolution: e.Count - session.StartCount,
		UnixNs:     e.UnixNanos,
		Quality:    e.Quality,
	}
	if !writer.Enqueue(row) {
		log.Printf("[Session] event queue full, dropping revolution %d", row.Revolution)
	}
}
