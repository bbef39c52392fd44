package reply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/page"
	"github.com/ibeckermayer/xwatch/internal/respond"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

var previewStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("63")).
	Padding(0, 1).
	Width(72)

var labelStyle = lipgloss.NewStyle().Bold(true)

// Composer generates reply text and posts it through a Plan
type Composer struct {
	policy    respond.Policy
	driver    page.Driver
	confirmer Confirmer
	plan      Plan
	sleeper   backoff.Sleeper
	humanizer *backoff.Humanizer
	out       io.Writer
	stats     *stats.Collection
	log       zerolog.Logger
}

// NewComposer creates a Composer. out receives the reply preview.
func NewComposer(
	policy respond.Policy,
	driver page.Driver,
	confirmer Confirmer,
	plan Plan,
	sleeper backoff.Sleeper,
	humanizer *backoff.Humanizer,
	out io.Writer,
	st *stats.Collection,
	log zerolog.Logger,
) *Composer {
	return &Composer{
		policy:    policy,
		driver:    driver,
		confirmer: confirmer,
		plan:      plan,
		sleeper:   sleeper,
		humanizer: humanizer,
		out:       out,
		stats:     st,
		log:       log.With().Str("component", "reply").Logger(),
	}
}

// Compose asks the policy for reply text. ok is false when the policy
// failed or declined; that is a skip, not an error.
func (c *Composer) Compose(ctx context.Context, item types.CollectedItem) (text string, ok bool) {
	text, err := c.policy.Generate(ctx, item)
	if err != nil {
		c.log.Warn().Err(err).Str("item_id", item.ID).Msg("no reply generated, skipping")
		return "", false
	}
	if respond.IsDecline(text) {
		c.log.Info().Str("item_id", item.ID).Msg("policy declined to reply")
		return "", false
	}
	return text, true
}

// Post runs the plan for item. It returns false with a nil error when the
// operator declines a gate, and a *types.PageError when automation fails.
func (c *Composer) Post(ctx context.Context, item types.CollectedItem, text string) (bool, error) {
	url := item.PermanentURL
	if url == "" {
		url = types.StatusURL(item.Author, item.ID)
	}
	c.preview(item, text)

	for i, step := range c.plan.Steps {
		log := c.log.With().Str("item_id", item.ID).Int("step", i+1).Str("name", step.Name).Logger()
		log.Debug().Stringer("kind", step.Kind).Msg("reply step")

		err := c.run(ctx, step, url, text)
		if errors.Is(err, types.ErrDeclined) {
			log.Info().Msg("operator declined, reply aborted")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if err := c.pause(ctx, step.Pause); err != nil {
			return false, err
		}
	}

	c.stats.RecordReply()
	c.log.Info().Str("item_id", item.ID).Str("url", url).Msg("reply posted")
	return true, nil
}

func (c *Composer) run(ctx context.Context, step Step, url, text string) error {
	switch step.Kind {
	case StepNavigate:
		return c.driver.Navigate(ctx, url, step.Timeout)
	case StepPressKey:
		return c.driver.PressKey(ctx, step.Key)
	case StepVerify:
		return c.verify(ctx, step)
	case StepGate:
		ok, err := c.confirmer.Confirm(ctx, step.Prompt)
		if err != nil {
			return err
		}
		if !ok {
			return types.ErrDeclined
		}
		return nil
	case StepType:
		return c.typeText(ctx, text)
	case StepWait:
		return nil
	case StepDetach:
		return c.driver.Detach(ctx, url)
	default:
		return fmt.Errorf("unknown reply step kind %d", step.Kind)
	}
}

func (c *Composer) verify(ctx context.Context, step Step) error {
	attempts := max(step.Attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.driver.WaitForSelector(ctx, step.Selector, step.Timeout); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("reply box not found")
		if attempt == attempts {
			break
		}
		if err := c.driver.PressKey(ctx, ReplyKey); err != nil {
			return err
		}
		if err := c.pause(ctx, step.Pause); err != nil {
			return err
		}
	}
	return &types.PageError{Action: "verify reply box", Selector: step.Selector, Err: err}
}

// typeText sends one character at a time with a longer pause at word breaks
func (c *Composer) typeText(ctx context.Context, text string) error {
	for _, r := range text {
		if err := c.driver.TypeText(ctx, string(r)); err != nil {
			return err
		}
		pacing := c.plan.Typing.Char
		if r == ' ' {
			pacing = c.plan.Typing.WordBreak
		}
		if err := c.pause(ctx, pacing); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composer) pause(ctx context.Context, r backoff.Range) error {
	d := c.humanizer.Draw(r)
	if d <= 0 {
		return ctx.Err()
	}
	return c.sleeper.Sleep(ctx, d)
}

func (c *Composer) preview(item types.CollectedItem, text string) {
	if c.out == nil {
		return
	}
	body := fmt.Sprintf("%s @%s · %s\n%s\n\n%s\n%s",
		labelStyle.Render("Post"), item.Author, item.Time().Format(time.DateTime), item.Text,
		labelStyle.Render("Reply"), text)
	fmt.Fprintln(c.out, previewStyle.Render(body))
}
