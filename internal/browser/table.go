package browser

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// advertisedCountPattern parses the widget heading announcing how many
// instances match the current filters.
var advertisedCountPattern = regexp.MustCompile(`([0-9]{1,3}) available instances$`)

// Rows walks the paginated table under the current filters and hands each
// row's cell texts to fn in display order. The paginator is explicitly
// reset to page one first; the widget does not always start there after a
// filter change. A non-nil error from fn aborts the walk and is returned
// unchanged.
func (d *Driver) Rows(ctx context.Context, fn func(cells []string) error) error {
	before, err := d.currentPage(ctx)
	if err != nil {
		return err
	}
	if err := d.firstPage(ctx); err != nil {
		return err
	}
	after, err := d.currentPage(ctx)
	if err != nil {
		return err
	}
	d.logger.Debug("paginator reset", zap.Int("before", before), zap.Int("after", after))

	total, err := d.totalPages(ctx)
	if err != nil {
		return err
	}
	if count, ok := d.advertisedCount(ctx); ok {
		d.logger.Debug("table filled", zap.Int("pages", total), zap.Int("advertised_rows", count))
	}

	extracted := 0
	for page := 0; page < total; page++ {
		if page > 0 {
			if err := d.nextPage(ctx); err != nil {
				return err
			}
		}
		var rows [][]string
		if err := d.run(ctx, chromedp.Evaluate(pageRowsJS, &rows)); err != nil {
			return driverErr("extract rows", err)
		}
		for _, cells := range rows {
			if err := fn(cells); err != nil {
				return err
			}
			extracted++
		}
	}

	d.logger.Debug("table walked", zap.Int("pages", total), zap.Int("rows", extracted))
	return nil
}

func (d *Driver) currentPage(ctx context.Context) (int, error) {
	var page int
	if err := d.run(ctx, chromedp.Evaluate(currentPageJS, &page)); err != nil {
		return 0, driverErr("paginate", err)
	}
	if page < 1 {
		return 0, driverErr("paginate", errors.New("current page marker not found"))
	}
	return page, nil
}

func (d *Driver) totalPages(ctx context.Context) (int, error) {
	var total int
	if err := d.run(ctx, chromedp.Evaluate(totalPagesJS, &total)); err != nil {
		return 0, driverErr("paginate", err)
	}
	if total < 1 {
		return 0, driverErr("paginate", errors.New("page count not found"))
	}
	return total, nil
}

func (d *Driver) firstPage(ctx context.Context) error {
	var clicked bool
	err := d.run(ctx,
		chromedp.Evaluate(firstPageJS, &clicked),
		chromedp.Sleep(d.cfg.Settle),
	)
	if err != nil {
		return driverErr("paginate", err)
	}
	if !clicked {
		return driverErr("paginate", errors.New("first page button not found"))
	}
	return nil
}

func (d *Driver) nextPage(ctx context.Context) error {
	var clicked bool
	err := d.run(ctx,
		chromedp.Evaluate(nextPageJS, &clicked),
		chromedp.Sleep(d.cfg.Settle),
	)
	if err != nil {
		return driverErr("paginate", err)
	}
	if !clicked {
		return driverErr("paginate", errors.New("next page button not found"))
	}
	return nil
}

// advertisedCount reads the "N available instances" heading, best effort.
func (d *Driver) advertisedCount(ctx context.Context) (int, bool) {
	var text string
	if err := d.run(ctx, chromedp.Evaluate(advertisedCountJS, &text)); err != nil {
		return 0, false
	}
	m := advertisedCountPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
