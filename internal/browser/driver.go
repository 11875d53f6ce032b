// Package browser drives a headless Chrome session against the EC2
// on-demand pricing page.
//
// Purpose:
//   The pricing table is rendered client-side inside a cross-origin iframe,
//   so harvesting requires a real browser. This package owns the whole
//   session: navigation, locating the pricing iframe's devtools target,
//   discovering the attribute-tagged filter dropdowns, changing filters,
//   and walking the paginated table.
//
// Dependencies:
//   - github.com/chromedp/chromedp: Chrome DevTools protocol driver
//   - github.com/chromedp/cdproto/target: iframe target resolution
//
// Key Responsibilities:
//   - Bring up one Chrome tab and bind a child context to the pricing iframe
//   - Discover filter dropdowns from their data-analytics markers
//   - Expose region/OS catalogs, filter selection, and row extraction
//   - Distinguish unknown filter selections (session still healthy) from
//     session failures (session must be torn down)
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	// pricingFrameID is the id of the inline frame wrapping the pricing
	// table widget.
	pricingFrameID = "iFrameResizer0"

	// sidebarSelector locates the page sidebar whose "On-Demand Pricing"
	// link scrolls the pricing section into view.
	sidebarSelector = ".lb-sidebar-content"

	// onDemandLinkText is the sidebar link that reveals the pricing table.
	onDemandLinkText = "On-Demand Pricing"

	// locationTypeAWSRegion is the only location type the engine harvests.
	locationTypeAWSRegion = "AWS Region"
)

// Filter categories as labeled on the pricing page. Discovery keys the
// dropdown map by these exact strings.
const (
	categoryRegion       = "Region"
	categoryOS           = "Operating system"
	categoryInstanceType = "Instance type"
	categoryVCPU         = "vCPU"
	categoryLocationType = "Location Type"
)

// Driver is one headless browser session bound to the pricing iframe.
// A Driver is not safe for concurrent use; the harvest pool gives each
// worker its own.
type Driver struct {
	cfg    Config
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	frameCtx      context.Context
	frameCancel   context.CancelFunc

	// dropdowns maps a filter category to its discovered selectors and
	// the option catalog captured during session bring-up.
	dropdowns map[string]*dropdown

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

// New starts a Chrome session, navigates to the pricing page, binds to the
// pricing iframe and discovers the filter dropdowns. The session lives
// within ctx; cancelling ctx terminates the browser.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(cfg.Logger.Sugar().Debugf),
	)

	d := &Driver{
		cfg:           cfg,
		logger:        cfg.Logger,
		allocCancel:   allocCancel,
		browserCancel: tabCancel,
		dropdowns:     make(map[string]*dropdown),
	}

	if err := d.bringUp(tabCtx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// bringUp performs the full navigation and discovery sequence against a
// fresh tab context.
func (d *Driver) bringUp(tabCtx context.Context) error {
	d.logger.Debug("navigating to pricing page", zap.String("url", d.cfg.URL))
	err := d.runOn(tabCtx,
		chromedp.Navigate(d.cfg.URL),
		chromedp.WaitVisible(sidebarSelector, chromedp.ByQuery),
		chromedp.Sleep(d.cfg.Settle),
	)
	if err != nil {
		return driverErr("navigate", err)
	}

	var clicked bool
	err = d.runOn(tabCtx, chromedp.Evaluate(clickSidebarLinkJS(sidebarSelector, onDemandLinkText), &clicked))
	if err != nil {
		return driverErr("navigate", err)
	}
	if !clicked {
		return driverErr("navigate", fmt.Errorf("sidebar link %q not found", onDemandLinkText))
	}

	err = d.runOn(tabCtx,
		chromedp.WaitVisible("#"+pricingFrameID, chromedp.ByQuery),
		chromedp.Sleep(d.cfg.Settle),
	)
	if err != nil {
		return driverErr("bind pricing frame", err)
	}

	frameCtx, frameCancel, err := d.bindFrame(tabCtx)
	if err != nil {
		return driverErr("bind pricing frame", err)
	}
	d.frameCtx = frameCtx
	d.frameCancel = frameCancel

	if err := d.discoverDropdowns(); err != nil {
		return err
	}

	// The table only carries instance data once the location type is
	// fixed; anything other than a plain region listing is out of scope.
	if err := d.selectOption(categoryLocationType, locationTypeAWSRegion); err != nil {
		if errors.Is(err, errKnownCategoryMissing) || isUnknownSelection(err) {
			return driverErr("discover filters", fmt.Errorf("location type %q unavailable", locationTypeAWSRegion))
		}
		return err
	}
	return nil
}

// bindFrame resolves the devtools target backing the pricing iframe and
// derives a child context bound to it. The iframe is cross-origin, so it
// surfaces as its own target rather than a frame of the tab.
func (d *Driver) bindFrame(tabCtx context.Context) (context.Context, context.CancelFunc, error) {
	var src string
	var ok bool
	err := d.runOn(tabCtx, chromedp.AttributeValue("#"+pricingFrameID, "src", &src, &ok, chromedp.ByQuery))
	if err != nil || !ok {
		return nil, nil, fmt.Errorf("pricing frame src unavailable: %w", err)
	}

	deadline := time.Now().Add(d.cfg.OpTimeout)
	for {
		infos, err := chromedp.Targets(tabCtx)
		if err != nil {
			return nil, nil, fmt.Errorf("list targets: %w", err)
		}
		if id, found := matchFrameTarget(infos, src); found {
			frameCtx, frameCancel := chromedp.NewContext(tabCtx, chromedp.WithTargetID(id))
			return frameCtx, frameCancel, nil
		}
		if time.Now().After(deadline) {
			return nil, nil, fmt.Errorf("no devtools target for frame src %q", src)
		}
		select {
		case <-tabCtx.Done():
			return nil, nil, tabCtx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// matchFrameTarget picks the iframe target whose URL corresponds to the
// pricing frame's src attribute.
func matchFrameTarget(infos []*target.Info, src string) (target.ID, bool) {
	key := frameMatchKey(src)
	var fallback target.ID
	var haveFallback bool
	for _, info := range infos {
		if info.Type != "iframe" {
			continue
		}
		if key != "" && strings.Contains(info.URL, key) {
			return info.TargetID, true
		}
		if !haveFallback {
			fallback = info.TargetID
			haveFallback = true
		}
	}
	return fallback, haveFallback
}

// frameMatchKey reduces an iframe src to a stable substring for target
// matching: scheme and query are dropped, protocol-relative srcs are kept.
func frameMatchKey(src string) string {
	s := strings.TrimSpace(src)
	s = strings.TrimPrefix(s, "https:")
	s = strings.TrimPrefix(s, "http:")
	s = strings.TrimPrefix(s, "//")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// run executes page actions against the pricing frame, bounded by the
// per-operation timeout.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return errors.New("session closed")
	}
	return d.runOn(d.frameCtx, actions...)
}

// runOn executes page actions against an explicit chromedp context.
func (d *Driver) runOn(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, d.cfg.OpTimeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Close terminates the browser session. Close is idempotent and safe to
// call on a partially initialized driver.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		if d.frameCancel != nil {
			d.frameCancel()
		}
		if d.browserCancel != nil {
			d.browserCancel()
		}
		if d.allocCancel != nil {
			d.allocCancel()
		}
		d.logger.Debug("browser session closed")
	})
	return nil
}
