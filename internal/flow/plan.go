package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/amanullahtanweer/interview-orchestrator/internal/llm"
)

// DefaultOutline is used when the session has no outline of its own.
const DefaultOutline = `1. Welcome the candidate and confirm audio quality.
2. Ask about the candidate's most relevant experience for the role.
3. Dive deeper into one technical project.
4. Explore behavioural competencies.
5. Provide time for candidate questions.
6. Close by explaining next steps.`

// DefaultWarmup is the instruction bound to the first plan item.
const DefaultWarmup = "Warmly welcome the candidate."

const planMaxTokens = 1024

const fence = "```"

// InterviewStep is one question with optional follow-up guidance.
type InterviewStep struct {
	Title     string   `json:"title"`
	Question  string   `json:"question"`
	Followups []string `json:"followups"`
}

// StepPlan is the ordered interview. Index 0 is the welcome step.
type StepPlan []InterviewStep

// Cursor walks a plan once, in order.
type Cursor struct {
	plan  StepPlan
	index int
}

// Cursor returns a fresh cursor positioned before the first step.
func (p StepPlan) Cursor() *Cursor {
	return &Cursor{plan: p}
}

// Next returns the next step, or false when the plan is exhausted.
func (c *Cursor) Next() (InterviewStep, int, bool) {
	if c.index >= len(c.plan) {
		return InterviewStep{}, c.index, false
	}
	step := c.plan[c.index]
	i := c.index
	c.index++
	return step, i, true
}

// Remaining is the number of steps not yet returned by Next.
func (c *Cursor) Remaining() int { return len(c.plan) - c.index }

// Planner asks the generation capability for a StepPlan.
type Planner struct {
	generator llm.Generator
}

// NewPlanner creates a planner backed by generator.
func NewPlanner(generator llm.Generator) *Planner {
	return &Planner{generator: generator}
}

// Build generates and parses a plan for the given document.
func (p *Planner) Build(ctx context.Context, documentText, outline, warmup string) (StepPlan, error) {
	raw, err := p.generator.Generate(ctx, llm.Request{
		Prompt:    planPrompt(documentText, outline, warmup),
		MaxTokens: planMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate interview plan: %w", err)
	}
	return ParsePlan(raw)
}

func planPrompt(documentText, outline, warmup string) string {
	if strings.TrimSpace(outline) == "" {
		outline = DefaultOutline
	}
	if strings.TrimSpace(warmup) == "" {
		warmup = DefaultWarmup
	}
	return fmt.Sprintf(`
You are preparing to interview a candidate.
CV:
%s

Interview outline:
%s

Return a JSON array where each item has the following keys:
- title: short string for UI display
- question: the primary question to ask
- followups: array of short follow-up prompts to dive deeper

Start with an item called "Welcome" that follows this warmup instruction: %s.
`, documentText, outline, warmup)
}

type rawStep struct {
	Title     *string  `json:"title"`
	Question  *string  `json:"question"`
	Followups []string `json:"followups"`
}

// ParsePlan reads a generation response as a plan. The whole response is
// tried first, then the first fenced segment holding a JSON array.
func ParsePlan(raw string) (StepPlan, error) {
	text := strings.TrimSpace(raw)

	var items []rawStep
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		block, ok := extractJSONBlock(text)
		if !ok {
			return nil, &PlanParseError{Raw: raw}
		}
		if err := json.Unmarshal([]byte(block), &items); err != nil {
			return nil, &PlanParseError{Raw: raw, Err: err}
		}
	}
	if len(items) == 0 {
		return nil, &PlanParseError{Raw: raw, Err: errors.New("plan has no steps")}
	}

	plan := make(StepPlan, 0, len(items))
	for i, item := range items {
		step := InterviewStep{
			Title:     fmt.Sprintf("Step %d", i+1),
			Followups: []string{},
		}
		if item.Title != nil {
			step.Title = *item.Title
		}
		if item.Question != nil {
			step.Question = *item.Question
		}
		if item.Followups != nil {
			step.Followups = item.Followups
		}
		plan = append(plan, step)
	}
	return plan, nil
}

// extractJSONBlock returns the first fenced segment that looks like an array.
// A leading language tag line such as "json" is ignored.
func extractJSONBlock(text string) (string, bool) {
	if !strings.Contains(text, fence) {
		return "", false
	}
	for _, part := range strings.Split(text, fence) {
		candidate := strings.TrimSpace(part)
		if isArrayText(candidate) {
			return candidate, true
		}
		if tag, rest, found := strings.Cut(candidate, "\n"); found && isLanguageTag(tag) {
			rest = strings.TrimSpace(rest)
			if isArrayText(rest) {
				return rest, true
			}
		}
	}
	return "", false
}

func isArrayText(s string) bool {
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 16 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
