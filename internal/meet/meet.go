// Package meet joins Google Meet calls with a real Chromium browser.
package meet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/interview-orchestrator/internal/flow"
)

const (
	nameInput   = `input[aria-label="Your name"]`
	micButton   = `[aria-label="Turn off microphone (ctrl + d)"]`
	camButton   = `[aria-label="Turn off camera (ctrl + e)"]`
	joinButton  = `button:has-text('Ask to join'), button:has-text('Join now')`
	chatTextbox = `[aria-label="Send a message to everyone"]`

	toggleChat = "Control+Alt+c"
	hangUp     = "Control+Alt+h"
)

// Connector launches a browser per session.
type Connector struct {
	Headless bool
	// VideoDir, when set, records the browser tab there.
	VideoDir string
	// PrejoinWait is how long the lobby gets to render before it is filled in.
	PrejoinWait time.Duration
	// JoinWait is how long to wait after clicking join.
	JoinWait time.Duration
}

func (c Connector) withDefaults() Connector {
	if c.PrejoinWait <= 0 {
		c.PrejoinWait = 2 * time.Second
	}
	if c.JoinWait <= 0 {
		c.JoinWait = 3 * time.Second
	}
	return c
}

// Connect opens the meeting and joins it as displayName.
func (c Connector) Connect(ctx context.Context, address, displayName string) (flow.RemoteSession, error) {
	c = c.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	s := &Session{pw: pw}

	s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(c.Headless),
		Args: []string{
			"--use-fake-ui-for-media-stream",
			"--use-fake-device-for-media-stream",
		},
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	opts := playwright.BrowserNewContextOptions{}
	if c.VideoDir != "" {
		if err := os.MkdirAll(c.VideoDir, 0755); err != nil {
			s.close()
			return nil, fmt.Errorf("create video directory: %w", err)
		}
		opts.RecordVideo = &playwright.RecordVideo{Dir: c.VideoDir}
	}
	s.context, err = s.browser.NewContext(opts)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	s.page, err = s.context.NewPage()
	if err != nil {
		s.close()
		return nil, fmt.Errorf("new page: %w", err)
	}

	if err := c.join(ctx, s.page, address, displayName); err != nil {
		s.close()
		return nil, err
	}
	log.Info().Msgf("Joined %s as %s", address, displayName)
	return s, nil
}

func (c Connector) join(ctx context.Context, page playwright.Page, address, displayName string) error {
	if _, err := page.Goto(address); err != nil {
		return fmt.Errorf("open meeting: %w", err)
	}
	page.WaitForTimeout(float64(c.PrejoinWait.Milliseconds()))
	if err := ctx.Err(); err != nil {
		return err
	}

	if n, _ := page.Locator(nameInput).Count(); n > 0 {
		if err := page.Locator(nameInput).Fill(displayName); err != nil {
			return fmt.Errorf("enter display name: %w", err)
		}
	}
	for _, sel := range []string{micButton, camButton} {
		if n, _ := page.Locator(sel).Count(); n > 0 {
			if err := page.Locator(sel).Click(); err != nil {
				log.Warn().Msgf("Could not toggle %s: %v", sel, err)
			}
		}
	}
	if err := page.Locator(joinButton).First().Click(); err != nil {
		return fmt.Errorf("join meeting: %w", err)
	}
	page.WaitForTimeout(float64(c.JoinWait.Milliseconds()))
	return ctx.Err()
}

// Session is a joined meeting tab.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	mu       sync.Mutex
	released bool
}

// SendMessage posts text to the meeting chat.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return flow.ErrSessionReleased
	}
	if s.page == nil {
		return errors.New("meeting page not open")
	}

	if err := s.page.Keyboard().Press(toggleChat); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}
	s.page.WaitForTimeout(500)
	box := s.page.Locator(chatTextbox)
	if err := box.Fill(text); err != nil {
		return fmt.Errorf("type chat message: %w", err)
	}
	if err := box.Press("Enter"); err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	return nil
}

// Leave hangs up and shuts the browser down. Only the first call acts.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true

	var errs []error
	if s.page != nil {
		if err := s.page.Keyboard().Press(hangUp); err != nil {
			errs = append(errs, fmt.Errorf("hang up: %w", err))
		}
		s.page.WaitForTimeout(1000)
	}
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close releases browser resources in reverse order of creation. Closing
// the context flushes the video recording.
func (s *Session) close() error {
	var errs []error
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		s.context = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.browser = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		s.pw = nil
	}
	s.page = nil
	return errors.Join(errs...)
}

// Install downloads the Chromium build playwright drives.
func Install() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}
