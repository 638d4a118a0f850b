package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amanullahtanweer/interview-orchestrator/internal/llm"
	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
)

const threeStepPlan = "```json\n" + `[
  {"title": "Welcome", "question": "Welcome! Can you hear me?", "followups": ["Is your audio clear?"]},
  {"title": "Experience", "question": "Tell me about your last project.", "followups": ["What was hardest?", "What would you change?"]},
  {"title": "Close", "question": "Any questions for us?"}
]` + "\n```"

// mockGenerator answers the plan prompt with plan and the summary prompt with summary.
type mockGenerator struct {
	plan       string
	planErr    error
	summary    string
	summaryErr error

	mu    sync.Mutex
	calls []string
}

func (m *mockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.HasPrefix(req.Prompt, "Transcript:") {
		m.calls = append(m.calls, "summary")
		return m.summary, m.summaryErr
	}
	m.calls = append(m.calls, "plan")
	return m.plan, m.planErr
}

type mockRemote struct {
	mu         sync.Mutex
	messages   []string
	leaves     int
	sendErr    error
	leaveErr   error
	sendPanics bool
}

func (m *mockRemote) SendMessage(ctx context.Context, text string) error {
	if m.sendPanics {
		panic("chat box vanished")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return m.sendErr
}

func (m *mockRemote) Leave(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves++
	return m.leaveErr
}

type mockConnector struct {
	remote *mockRemote
	err    error

	mu          sync.Mutex
	calls       int
	address     string
	displayName string
}

func (m *mockConnector) Connect(ctx context.Context, address, displayName string) (RemoteSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.address = address
	m.displayName = displayName
	if m.err != nil {
		return nil, m.err
	}
	return m.remote, nil
}

type mockBridge struct {
	startErr error
	speakErr error
	stopErr  error
	// onSpeak runs before Speak returns.
	onSpeak func(text string)
	// startGate, when set, blocks Start until closed.
	startGate chan struct{}

	mu     sync.Mutex
	starts int
	stops  int
	spoken []string
}

func (m *mockBridge) Start(ctx context.Context) error {
	if m.startGate != nil {
		<-m.startGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *mockBridge) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return m.stopErr
}

func (m *mockBridge) Speak(ctx context.Context, text string) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	hook := m.onSpeak
	m.mu.Unlock()
	if hook != nil {
		hook(text)
	}
	return m.speakErr
}

func (m *mockBridge) CaptureStats() (int, int) { return 10, 3200 }

type mockTranscriber struct {
	text string
	err  error
	path string
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	m.path = audioPath
	return m.text, m.err
}

// recorder collects every event delivered to observers.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) texts(kind notify.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Text)
		}
	}
	return out
}

type harness struct {
	settings    Settings
	generator   *mockGenerator
	extractor   ExtractorFunc
	connector   *mockConnector
	remote      *mockRemote
	bridge      *mockBridge
	transcriber *mockTranscriber
	recorder    *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	remote := &mockRemote{}
	return &harness{
		settings: Settings{
			MeetingURL:      "https://meet.example.com/abc-defg-hij",
			CandidateName:   "Ada",
			InterviewerName: "Bot",
			DocumentPath:    filepath.Join(dir, "cv.pdf"),
			Provider:        ProviderConfig{Provider: "openai", APIKey: "sk-test"},
			TranscriptPath:  filepath.Join(dir, "out", "transcript.txt"),
			AudioOutputPath: filepath.Join(dir, "out", "audio.wav"),
			SettleDelay:     time.Millisecond,
			ResponseWindow:  time.Millisecond,
		},
		generator: &mockGenerator{plan: threeStepPlan, summary: "Hire."},
		extractor: func(ctx context.Context, path string) (string, error) {
			return "Ada Lovelace\nAnalytical Engine", nil
		},
		connector:   &mockConnector{remote: remote},
		remote:      remote,
		bridge:      &mockBridge{},
		transcriber: &mockTranscriber{text: "I built the engine."},
		recorder:    &recorder{},
	}
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(h.settings, Deps{
		Extractor:   h.extractor,
		Generator:   h.generator,
		Connector:   h.connector,
		Bridge:      h.bridge,
		Transcriber: h.transcriber,
		Observer:    h.recorder,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func runToEnd(t *testing.T, c *Controller) Result {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return res
}

func TestControllerCompletesAllSteps(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	res := runToEnd(t, c)

	if res.State != StateCompleted || res.Err != nil {
		t.Fatalf("result = %s, %v", res.State, res.Err)
	}
	if c.State() != StateCompleted {
		t.Errorf("State() = %s", c.State())
	}
	if res.Summary != "Hire." {
		t.Errorf("summary = %q", res.Summary)
	}
	if res.SessionID == "" || res.SessionID != c.SessionID() {
		t.Errorf("session id = %q, controller = %q", res.SessionID, c.SessionID())
	}

	wantSpoken := []string{"Welcome! Can you hear me?", "Tell me about your last project.", "Any questions for us?"}
	if !reflect.DeepEqual(h.bridge.spoken, wantSpoken) {
		t.Errorf("spoken = %q, want %q", h.bridge.spoken, wantSpoken)
	}

	wantTranscript := strings.Join([]string{
		"Bot: Welcome! Can you hear me?",
		"Bot: (Optional follow-up) Is your audio clear?",
		"Bot: Tell me about your last project.",
		"Bot: (Optional follow-up) What was hardest?",
		"Bot: (Optional follow-up) What would you change?",
		"Bot: Any questions for us?",
		"Ada: I built the engine.",
	}, "\n")
	data, err := os.ReadFile(h.settings.TranscriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(data) != wantTranscript {
		t.Errorf("transcript file:\n%s\nwant:\n%s", data, wantTranscript)
	}

	if h.connector.displayName != "Bot" || h.connector.address != h.settings.MeetingURL {
		t.Errorf("connect(%q, %q)", h.connector.address, h.connector.displayName)
	}
	if !reflect.DeepEqual(h.remote.messages, []string{DefaultClosingMessage}) {
		t.Errorf("messages = %q", h.remote.messages)
	}
	if h.remote.leaves != 1 || h.bridge.starts != 1 || h.bridge.stops != 1 {
		t.Errorf("leaves=%d starts=%d stops=%d", h.remote.leaves, h.bridge.starts, h.bridge.stops)
	}
	if h.transcriber.path != h.settings.AudioOutputPath {
		t.Errorf("transcribed %q", h.transcriber.path)
	}

	statuses := h.recorder.texts(notify.KindStatus)
	if len(statuses) == 0 || statuses[len(statuses)-1] != StatusComplete {
		t.Errorf("final status = %q", statuses)
	}
	for _, want := range []string{StatusParsing, StatusPlanning, StatusConnected, StatusWaiting} {
		if !contains(statuses, want) {
			t.Errorf("status %q never reported", want)
		}
	}
	transcripts := h.recorder.texts(notify.KindTranscript)
	if len(transcripts) != 4 || transcripts[3] != wantTranscript {
		t.Errorf("transcript notifications = %d, last %q", len(transcripts), transcripts[len(transcripts)-1])
	}
	if got := h.recorder.texts(notify.KindSummary); !reflect.DeepEqual(got, []string{"Hire."}) {
		t.Errorf("summary notifications = %q", got)
	}
}

func TestControllerStopCancelsRemainingSteps(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	h.bridge.onSpeak = func(string) { c.Stop() }

	res := runToEnd(t, c)

	if res.State != StateCancelled || res.Err != nil {
		t.Fatalf("result = %s, %v", res.State, res.Err)
	}
	if len(h.bridge.spoken) != 1 {
		t.Errorf("spoken %d questions after stop, want 1", len(h.bridge.spoken))
	}
	if h.remote.leaves != 1 || h.bridge.stops != 1 {
		t.Errorf("teardown leaves=%d stops=%d", h.remote.leaves, h.bridge.stops)
	}
	if res.Summary != "Hire." {
		t.Errorf("a cancelled session is still summarized, got %q", res.Summary)
	}
	statuses := h.recorder.texts(notify.KindStatus)
	if statuses[len(statuses)-1] != StatusCancelled {
		t.Errorf("final status = %q", statuses[len(statuses)-1])
	}

	c.Stop()
	c.Stop()
	if c.State() != StateCancelled {
		t.Errorf("repeated Stop changed state to %s", c.State())
	}
}

func TestControllerStopOnLastStepCompletes(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	h.bridge.onSpeak = func(text string) {
		if text == "Any questions for us?" {
			c.Stop()
		}
	}

	if res := runToEnd(t, c); res.State != StateCompleted {
		t.Fatalf("state = %s, want completed once every step was asked", res.State)
	}
}

func TestControllerStopBeforeStartIsIgnored(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	c.Stop()

	if res, err := c.Wait(context.Background()); err != nil || res.State != StateIdle {
		t.Fatalf("Wait before Start = %v, %v", res.State, err)
	}
	if res := runToEnd(t, c); res.State != StateCompleted {
		t.Fatalf("state = %s", res.State)
	}
	if len(h.bridge.spoken) != 3 {
		t.Errorf("spoken = %d", len(h.bridge.spoken))
	}
}

func TestControllerMissingCredential(t *testing.T) {
	h := newHarness(t)
	h.settings.Provider.APIKey = ""
	c := h.controller(t)

	res := runToEnd(t, c)

	var cfgErr *ConfigurationError
	if res.State != StateFailed || !errors.As(res.Err, &cfgErr) {
		t.Fatalf("result = %s, %v", res.State, res.Err)
	}
	if h.connector.calls != 0 || h.bridge.starts != 0 {
		t.Errorf("collaborators touched: connect=%d start=%d", h.connector.calls, h.bridge.starts)
	}
	statuses := h.recorder.texts(notify.KindStatus)
	if !strings.HasPrefix(statuses[len(statuses)-1], "Interview failed:") {
		t.Errorf("final status = %q", statuses[len(statuses)-1])
	}
}

func TestControllerStartWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.bridge.startGate = make(chan struct{})
	c := h.controller(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v", err)
	}
	close(h.bridge.startGate)

	res, err := c.Wait(context.Background())
	if err != nil || res.State != StateCompleted {
		t.Fatalf("result = %s, %v", res.State, err)
	}
}

// gatedObserver holds delivery of the completion status until release closes.
type gatedObserver struct {
	*recorder
	reached chan struct{}
	release chan struct{}
}

func (g *gatedObserver) Notify(e notify.Event) {
	g.recorder.Notify(e)
	if e.Kind == notify.KindStatus && e.Text == StatusComplete {
		close(g.reached)
		<-g.release
	}
}

func TestControllerRejectsStartUntilFinalStatusDelivered(t *testing.T) {
	h := newHarness(t)
	obs := &gatedObserver{recorder: h.recorder, reached: make(chan struct{}), release: make(chan struct{})}
	c, err := NewController(h.settings, Deps{
		Extractor:   h.extractor,
		Generator:   h.generator,
		Connector:   h.connector,
		Bridge:      h.bridge,
		Transcriber: h.transcriber,
		Observer:    obs,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-obs.reached:
	case <-time.After(5 * time.Second):
		t.Fatal("completion status never delivered")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Start during final delivery = %v", err)
	}
	if c.State().Terminal() {
		t.Errorf("state %s became terminal before delivery finished", c.State())
	}
	close(obs.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.Wait(ctx)
	if err != nil || res.State != StateCompleted {
		t.Fatalf("result = %s, %v", res.State, err)
	}
	if c.State() != StateCompleted {
		t.Errorf("state after Wait = %s", c.State())
	}
	if h.connector.calls != 1 {
		t.Errorf("connect calls = %d", h.connector.calls)
	}
}

func TestControllerRestartAfterTerminal(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)

	first := runToEnd(t, c)
	second := runToEnd(t, c)

	if first.State != StateCompleted || second.State != StateCompleted {
		t.Fatalf("states = %s, %s", first.State, second.State)
	}
	if first.SessionID == second.SessionID {
		t.Error("each session needs its own id")
	}
	if h.connector.calls != 2 || h.remote.leaves != 2 {
		t.Errorf("connect=%d leaves=%d", h.connector.calls, h.remote.leaves)
	}
}

func TestControllerConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.connector.err = errors.New("meeting full")
	c := h.controller(t)

	res := runToEnd(t, c)

	var capErr *ExternalCapabilityError
	if !errors.As(res.Err, &capErr) || capErr.Phase != StateConnecting {
		t.Fatalf("err = %v", res.Err)
	}
	if h.bridge.starts != 0 || h.bridge.stops != 0 {
		t.Errorf("bridge touched without a remote session: starts=%d stops=%d", h.bridge.starts, h.bridge.stops)
	}
}

func TestControllerBridgeFailureReleasesRemote(t *testing.T) {
	h := newHarness(t)
	h.bridge.startErr = errors.New("device busy")
	c := h.controller(t)

	res := runToEnd(t, c)

	if res.State != StateFailed || !errors.Is(res.Err, h.bridge.startErr) {
		t.Fatalf("result = %s, %v", res.State, res.Err)
	}
	if h.remote.leaves != 1 {
		t.Errorf("leaves = %d, want 1", h.remote.leaves)
	}
	if h.bridge.stops != 1 {
		t.Errorf("stops = %d, want 1", h.bridge.stops)
	}
	if h.transcriber.path != "" {
		t.Error("no transcription after an interviewing fault")
	}
}

func TestControllerSpeakFailureTearsDown(t *testing.T) {
	h := newHarness(t)
	h.bridge.speakErr = errors.New("socket closed")
	c := h.controller(t)

	res := runToEnd(t, c)

	var capErr *ExternalCapabilityError
	if res.State != StateFailed || !errors.As(res.Err, &capErr) || capErr.Phase != StateInterviewing {
		t.Fatalf("result = %s, %v", res.State, res.Err)
	}
	if h.remote.leaves != 1 || h.bridge.stops != 1 {
		t.Errorf("leaves=%d stops=%d", h.remote.leaves, h.bridge.stops)
	}
	if h.transcriber.path != "" {
		t.Error("transcription must be skipped")
	}
	if got := h.recorder.texts(notify.KindSummary); len(got) != 0 {
		t.Errorf("summary emitted on failure: %q", got)
	}
}

func TestControllerClosingMessageFailureStillLeaves(t *testing.T) {
	h := newHarness(t)
	h.remote.sendPanics = true
	h.bridge.stopErr = errors.New("already closed")
	c := h.controller(t)

	res := runToEnd(t, c)

	if res.State != StateCompleted {
		t.Fatalf("state = %s, %v", res.State, res.Err)
	}
	if h.remote.leaves != 1 || h.bridge.stops != 1 {
		t.Errorf("leaves=%d stops=%d", h.remote.leaves, h.bridge.stops)
	}
	warnings := 0
	for _, s := range h.recorder.texts(notify.KindStatus) {
		if strings.HasPrefix(s, "Warning:") {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("warnings = %d, want 2", warnings)
	}
}

func TestControllerTranscriptionPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("model not found")
	c := h.controller(t)

	res := runToEnd(t, c)

	if res.State != StateCompleted {
		t.Fatalf("state = %s, %v", res.State, res.Err)
	}
	data, err := os.ReadFile(h.settings.TranscriptPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(data), "\n")
	if last := lines[len(lines)-1]; last != "Ada: [Transcription unavailable: model not found]" {
		t.Errorf("last line = %q", last)
	}
}

func TestControllerSummaryFailure(t *testing.T) {
	h := newHarness(t)
	h.generator.summaryErr = errors.New("quota exceeded")
	c := h.controller(t)

	res := runToEnd(t, c)

	var capErr *ExternalCapabilityError
	if res.State != StateFailed || !errors.As(res.Err, &capErr) || capErr.Phase != StateSummarizing {
		t.Fatalf("result = %s, %v", res.State, res.Err)
	}
	if h.remote.leaves != 1 {
		t.Errorf("leaves = %d", h.remote.leaves)
	}
}

func TestControllerPlanParseFailure(t *testing.T) {
	h := newHarness(t)
	h.generator.plan = "Sorry, I can't do that."
	c := h.controller(t)

	res := runToEnd(t, c)

	var perr *PlanParseError
	if res.State != StateFailed || !errors.As(res.Err, &perr) {
		t.Fatalf("result = %s, %v", res.State, res.Err)
	}
	if h.connector.calls != 0 {
		t.Error("connector called without a plan")
	}
}

func TestControllerExtractFailure(t *testing.T) {
	h := newHarness(t)
	h.extractor = func(context.Context, string) (string, error) { return "", os.ErrNotExist }
	c := h.controller(t)

	res := runToEnd(t, c)

	var capErr *ExternalCapabilityError
	if !errors.As(res.Err, &capErr) || capErr.Phase != StatePreparing || !errors.Is(res.Err, os.ErrNotExist) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestControllerWritesEventLog(t *testing.T) {
	h := newHarness(t)
	h.settings.Provider.Model = "gpt-4o-mini"
	c := h.controller(t)
	runToEnd(t, c)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(h.settings.TranscriptPath), "*_session_*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("event logs = %v, %v", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`"event":"session_start"`, `"model":"gpt-4o-mini"`, `"api_key":"set"`,
		`"event":"step"`, `"state":"concluding"`, `"event":"session_end"`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("event log missing %s", want)
		}
	}
	if strings.Contains(string(data), "sk-test") {
		t.Error("event log leaked the API key")
	}
}

func TestNewControllerValidates(t *testing.T) {
	h := newHarness(t)
	h.settings.MeetingURL = ""
	_, err := NewController(h.settings, Deps{Extractor: h.extractor, Connector: h.connector, Bridge: h.bridge})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || !strings.Contains(cfgErr.Reason, "meeting_url") {
		t.Fatalf("err = %v", err)
	}

	h = newHarness(t)
	_, err = NewController(h.settings, Deps{Extractor: h.extractor})
	if !errors.As(err, &cfgErr) || !strings.Contains(cfgErr.Reason, "connector") {
		t.Fatalf("err = %v", err)
	}
}

func TestRemoteHandleReleasesOnce(t *testing.T) {
	remote := &mockRemote{leaveErr: errors.New("tab crashed")}
	h := newRemoteHandle(remote)

	if err := h.SendMessage(context.Background(), "bye"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	first := h.Release(context.Background())
	second := h.Release(context.Background())
	if first == nil || first != second {
		t.Errorf("Release = %v then %v", first, second)
	}
	if remote.leaves != 1 {
		t.Errorf("Leave called %d times", remote.leaves)
	}
	if err := h.SendMessage(context.Background(), "again"); !errors.Is(err, ErrSessionReleased) {
		t.Errorf("SendMessage after release = %v", err)
	}
}

func TestWindowTimer(t *testing.T) {
	start := time.Now()
	if err := NewWindowTimer(20 * time.Millisecond).Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Wait returned early")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWindowTimer(time.Hour).Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait on cancelled ctx = %v", err)
	}
}

func TestSettingsZeroTimingUsesDefaults(t *testing.T) {
	s := Settings{}.WithDefaults()
	if s.SettleDelay != DefaultSettleDelay || s.ResponseWindow != DefaultResponseWindow {
		t.Errorf("timing = %v, %v", s.SettleDelay, s.ResponseWindow)
	}

	s = Settings{SettleDelay: time.Millisecond, ResponseWindow: 3 * time.Second}.WithDefaults()
	if s.SettleDelay != time.Millisecond || s.ResponseWindow != 3*time.Second {
		t.Errorf("explicit timing overwritten: %v, %v", s.SettleDelay, s.ResponseWindow)
	}
}

func TestProviderConfigAsMap(t *testing.T) {
	got := ProviderConfig{Provider: "openai", Model: "gpt-4o", Extra: map[string]string{"base_url": "http://x"}}.AsMap()
	want := map[string]string{"provider": "openai", "model": "gpt-4o", "base_url": "http://x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AsMap() = %v, want %v", got, want)
	}
	if m := (ProviderConfig{Provider: "openai", APIKey: "k"}).AsMap(); m["api_key"] != "k" {
		t.Errorf("api_key = %q", m["api_key"])
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
