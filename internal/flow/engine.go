package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/interview-orchestrator/internal/llm"
	"github.com/amanullahtanweer/interview-orchestrator/internal/metrics"
	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
	"github.com/amanullahtanweer/interview-orchestrator/internal/transcript"
)

// Status messages shown to observers.
const (
	StatusParsing     = "Parsing CV document…"
	StatusPlanning    = "Generating interview flow with LLM…"
	StatusConnected   = "Connected to the meeting. Beginning interview…"
	StatusWaiting     = "Waiting for candidate response…"
	StatusStopping    = "Stop requested. Skipping remaining questions…"
	StatusTranscribe  = "Transcribing candidate audio…"
	StatusSummarizing = "Summarizing interview…"
	StatusComplete    = "Interview complete."
	StatusCancelled   = "Interview cancelled."
)

// FollowupPrefix marks follow-ups recorded in the transcript but never spoken.
const FollowupPrefix = "(Optional follow-up) "

// Extractor turns a document into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) { return f(ctx, path) }

// Connector joins a remote meeting as displayName.
type Connector interface {
	Connect(ctx context.Context, address, displayName string) (RemoteSession, error)
}

// RemoteSession is a joined meeting.
type RemoteSession interface {
	SendMessage(ctx context.Context, text string) error
	Leave(ctx context.Context) error
}

// AudioBridge records the meeting audio and speaks into it. Stop must be
// safe to call when Start never ran, and safe to call twice.
type AudioBridge interface {
	Start(ctx context.Context) error
	Stop() error
	Speak(ctx context.Context, text string) error
}

// CaptureReporter is implemented by bridges that count captured audio.
type CaptureReporter interface {
	CaptureStats() (frames, bytes int)
}

// Transcriber converts a recorded audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Deps are the collaborators a Controller drives. Transcriber and Observer
// are optional. A nil Generator is built from Settings.Provider.
type Deps struct {
	Extractor   Extractor
	Generator   llm.Generator
	Connector   Connector
	Bridge      AudioBridge
	Transcriber Transcriber
	Observer    notify.Observer
}

// Result describes a finished session.
type Result struct {
	SessionID string
	State     SessionState
	Err       error
	Summary   string
	Plan      StepPlan
	Metrics   string
}

// Option customises a Controller.
type Option func(*Controller)

// WithQueueSize bounds the notification queue of each session.
func WithQueueSize(n int) Option {
	return func(c *Controller) { c.queueSize = n }
}

// WithoutEventLog disables the JSONL session log.
func WithoutEventLog() Option {
	return func(c *Controller) { c.eventLog = false }
}

// Controller runs one interview session at a time on a background worker.
type Controller struct {
	settings Settings
	deps     Deps

	queueSize int
	eventLog  bool

	stopRequested atomic.Bool

	mu      sync.Mutex
	state   SessionState
	current *session
}

type session struct {
	id       string
	started  time.Time
	done     chan struct{}
	result   Result
	notifier *notify.Dispatcher
	ledger   *transcript.Ledger
	events   *SessionLogger
	metrics  *metrics.SessionMetrics
}

// NewController validates settings and deps. Nothing runs until Start.
func NewController(settings Settings, deps Deps, opts ...Option) (*Controller, error) {
	settings = settings.WithDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	var missing []string
	if deps.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if deps.Connector == nil {
		missing = append(missing, "connector")
	}
	if deps.Bridge == nil {
		missing = append(missing, "audio bridge")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Reason: "missing collaborators: " + strings.Join(missing, ", ")}
	}
	if deps.Generator == nil {
		deps.Generator = llm.NewClient(settings.Provider.LLMConfig())
	}

	c := &Controller{
		settings:  settings,
		deps:      deps,
		queueSize: notify.DefaultQueueSize,
		eventLog:  true,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Settings returns the effective settings.
func (c *Controller) Settings() Settings { return c.settings }

// State returns the current lifecycle state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id of the latest session, or "" before the first Start.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// Start launches a session in the background and returns immediately.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Startable() {
		return ErrAlreadyRunning
	}

	c.stopRequested.Store(false)
	s := &session{
		id:       uuid.New().String(),
		started:  time.Now(),
		done:     make(chan struct{}),
		notifier: notify.NewDispatcher(c.deps.Observer, c.queueSize),
		ledger:   transcript.NewLedger(c.settings.TranscriptPath),
	}
	s.metrics = metrics.NewSessionMetrics(c.settings.Provider.Provider, s.id)
	if c.eventLog {
		events, err := NewSessionLogger(c.settings.EventLogDir, s.id, s.started)
		if err != nil {
			log.Warn().Msgf("Session %s: event log unavailable: %v", s.id, err)
		}
		s.events = events
	}
	details := c.settings.Provider.AsMap()
	if _, ok := details["api_key"]; ok {
		details["api_key"] = "set"
	}
	details["meeting_url"] = c.settings.MeetingURL
	details["candidate"] = c.settings.CandidateName
	s.events.LogSessionStart(s.id, s.started, details)

	c.current = s
	c.state = StatePreparing
	s.metrics.EnterPhase(StatePreparing.String())
	s.events.LogState(s.id, StatePreparing)

	log.Info().Msgf("Session %s: starting interview for %s", s.id, c.settings.CandidateName)
	go c.run(ctx, s)
	return nil
}

// Stop asks the running session to skip its remaining questions. Teardown,
// transcription and summary still happen. Stop never blocks.
func (c *Controller) Stop() {
	if c.stopRequested.CompareAndSwap(false, true) {
		log.Info().Msgf("Session %s: stop requested", c.SessionID())
	}
}

// Wait blocks until the latest session finishes or ctx is done. Every
// notification of the session has been delivered when Wait returns.
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	c.mu.Lock()
	s := c.current
	state := c.state
	c.mu.Unlock()
	if s == nil {
		return Result{State: state}, nil
	}
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, s *session) {
	defer close(s.done)

	var plan StepPlan
	state, err := func() (state SessionState, err error) {
		defer func() {
			if p := recover(); p != nil {
				state, err = StateFailed, fmt.Errorf("session worker panicked: %v", p)
			}
		}()
		return c.execute(ctx, s, &plan)
	}()
	c.finish(s, plan, state, err)
}

func (c *Controller) execute(ctx context.Context, s *session, plan *StepPlan) (SessionState, error) {
	if err := c.settings.Provider.Validate(); err != nil {
		return StateFailed, err
	}

	c.status(s, StatusParsing)
	text, err := c.deps.Extractor.Extract(ctx, c.settings.DocumentPath)
	if err != nil {
		return StateFailed, capabilityError("document extraction", StatePreparing, err)
	}

	c.status(s, StatusPlanning)
	*plan, err = NewPlanner(c.deps.Generator).Build(ctx, text, c.settings.Outline, c.settings.WarmupPrompt)
	if err != nil {
		return StateFailed, capabilityError("plan generation", StatePreparing, err)
	}
	log.Info().Msgf("Session %s: plan ready with %d steps", s.id, len(*plan))

	outcome, err := c.interview(ctx, s, *plan)
	if err != nil {
		return StateFailed, err
	}

	if err := c.transcribe(ctx, s); err != nil {
		return StateFailed, err
	}

	c.transition(s, StateSummarizing)
	c.status(s, StatusSummarizing)
	summary, err := s.ledger.Summarize(ctx, c.deps.Generator)
	if err != nil {
		return StateFailed, capabilityError("summary generation", StateSummarizing, err)
	}
	s.result.Summary = summary
	c.emit(s, notify.KindSummary, summary)
	return outcome, nil
}

// interview connects, asks every step and tears both resources down. It
// returns Completed or Cancelled, or an error for an unrecovered fault.
func (c *Controller) interview(ctx context.Context, s *session, plan StepPlan) (SessionState, error) {
	c.transition(s, StateConnecting)
	remote, err := c.deps.Connector.Connect(ctx, c.settings.MeetingURL, c.settings.InterviewerName)
	if err != nil {
		return StateFailed, capabilityError("remote session", StateConnecting, err)
	}
	handle := newRemoteHandle(remote)

	// Deferred in reverse: the remote is released first, then the bridge,
	// and neither depends on the other succeeding.
	defer c.stopBridge(s)
	defer c.releaseRemote(ctx, s, handle)
	defer c.transition(s, StateConcluding)

	if err := c.deps.Bridge.Start(ctx); err != nil {
		return StateFailed, capabilityError("audio bridge", StateConnecting, err)
	}
	c.status(s, StatusConnected)

	c.transition(s, StateInterviewing)
	settle := NewWindowTimer(c.settings.SettleDelay)
	window := NewWindowTimer(c.settings.ResponseWindow)

	cursor := plan.Cursor()
	for {
		step, index, ok := cursor.Next()
		if !ok {
			return StateCompleted, nil
		}
		if c.stopRequested.Load() {
			log.Info().Msgf("Session %s: stopping before step %d, %d remaining", s.id, index+1, cursor.Remaining()+1)
			c.status(s, StatusStopping)
			return StateCancelled, nil
		}
		if err := c.ask(ctx, s, index, step, settle, window); err != nil {
			return StateFailed, err
		}
	}
}

func (c *Controller) ask(ctx context.Context, s *session, index int, step InterviewStep, settle, window *WindowTimer) error {
	log.Info().Msgf("Session %s: step %d %q", s.id, index+1, step.Title)
	s.events.LogStep(s.id, index, step)

	if err := s.ledger.Append(c.settings.InterviewerName, step.Question); err != nil {
		return capabilityError("transcript", StateInterviewing, err)
	}
	c.emit(s, notify.KindTranscript, s.ledger.Render())

	if err := c.deps.Bridge.Speak(ctx, step.Question); err != nil {
		return capabilityError("speech", StateInterviewing, err)
	}
	for _, followup := range step.Followups {
		if err := s.ledger.Append(c.settings.InterviewerName, FollowupPrefix+followup); err != nil {
			return capabilityError("transcript", StateInterviewing, err)
		}
	}
	s.metrics.AddStep(step.Question, len(step.Followups))

	if err := settle.Wait(ctx); err != nil {
		return err
	}
	c.status(s, StatusWaiting)
	return window.Wait(ctx)
}

func (c *Controller) releaseRemote(ctx context.Context, s *session, handle *remoteHandle) {
	ctx = context.WithoutCancel(ctx)

	err := guard(func() error { return handle.SendMessage(ctx, c.settings.ClosingMessage) })
	if err != nil {
		log.Warn().Msgf("Session %s: failed to send closing message: %v", s.id, err)
		c.status(s, fmt.Sprintf("Warning: could not send the closing message: %v", err))
	}
	s.events.LogRelease(s.id, "closing_message", err)

	err = handle.Release(ctx)
	if err != nil {
		log.Warn().Msgf("Session %s: failed to leave the meeting: %v", s.id, err)
		c.status(s, fmt.Sprintf("Warning: could not leave the meeting cleanly: %v", err))
	}
	s.events.LogRelease(s.id, "remote_session", err)
}

func (c *Controller) stopBridge(s *session) {
	err := guard(c.deps.Bridge.Stop)
	if err != nil {
		log.Warn().Msgf("Session %s: failed to stop audio bridge: %v", s.id, err)
		c.status(s, fmt.Sprintf("Warning: audio capture did not stop cleanly: %v", err))
	}
	s.events.LogRelease(s.id, "audio_bridge", err)
	if reporter, ok := c.deps.Bridge.(CaptureReporter); ok {
		frames, bytes := reporter.CaptureStats()
		s.metrics.AddCapture(frames, bytes)
	}
}

// transcribe appends the candidate's words. A transcription fault degrades to
// a placeholder entry instead of failing the session.
func (c *Controller) transcribe(ctx context.Context, s *session) error {
	c.transition(s, StateTranscribing)
	c.status(s, StatusTranscribe)

	var text string
	err := errors.New("no transcriber configured")
	if c.deps.Transcriber != nil {
		err = guard(func() error {
			var terr error
			text, terr = c.deps.Transcriber.Transcribe(ctx, c.settings.AudioOutputPath)
			return terr
		})
	}
	degraded := err != nil
	if degraded {
		log.Warn().Msgf("Session %s: transcription unavailable: %v", s.id, err)
		s.events.LogDegraded(s.id, "transcription", err)
		text = fmt.Sprintf("[Transcription unavailable: %v]", err)
	}
	s.metrics.SetTranscript(text, degraded)

	if err := s.ledger.Append(c.settings.CandidateName, text); err != nil {
		return capabilityError("transcript", StateTranscribing, err)
	}
	c.emit(s, notify.KindTranscript, s.ledger.Render())
	return nil
}

func (c *Controller) finish(s *session, plan StepPlan, state SessionState, err error) {
	s.metrics.Finalize()
	s.events.LogState(s.id, state)
	s.events.LogSessionEnd(s.id, time.Now(), state, err)

	switch {
	case err != nil:
		log.Error().Msgf("Session %s: interview failed: %v", s.id, err)
		c.emitAs(s, state, notify.KindStatus, fmt.Sprintf("Interview failed: %v", err))
	case state == StateCancelled:
		log.Info().Msgf("Session %s: interview cancelled", s.id)
		c.emitAs(s, state, notify.KindStatus, StatusCancelled)
	default:
		log.Info().Msgf("Session %s: interview completed", s.id)
		c.emitAs(s, state, notify.KindStatus, StatusComplete)
	}
	log.Debug().Msgf("Session %s metrics:\n%s", s.id, s.metrics.Summary())

	s.result.SessionID = s.id
	s.result.State = state
	s.result.Err = err
	s.result.Plan = plan
	s.result.Metrics = s.metrics.Summary()

	s.notifier.Close()
	if cerr := s.events.Close(); cerr != nil {
		log.Warn().Msgf("Session %s: closing event log: %v", s.id, cerr)
	}

	// Start is refused until every event of this session is delivered.
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) transition(s *session, state SessionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	s.metrics.EnterPhase(state.String())
	s.events.LogState(s.id, state)
	log.Debug().Msgf("Session %s: state %s", s.id, state)
}

func (c *Controller) status(s *session, text string) {
	c.emit(s, notify.KindStatus, text)
}

func (c *Controller) emit(s *session, kind notify.Kind, text string) {
	c.emitAs(s, c.State(), kind, text)
}

func (c *Controller) emitAs(s *session, state SessionState, kind notify.Kind, text string) {
	s.notifier.Emit(notify.Event{Kind: kind, SessionID: s.id, State: state.String(), Text: text})
}
