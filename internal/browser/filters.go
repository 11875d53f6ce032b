package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
)

// dropdown is one discovered filter widget: the selector that toggles its
// listbox, the selector matching its option items, and the option catalog
// captured at discovery time.
type dropdown struct {
	button  string
	options string
	values  []string
}

// fieldLabelPattern parses the data-analytics-field-label attribute value,
// which embeds the id of the dropdown's label element (`id="os-label"`).
var fieldLabelPattern = regexp.MustCompile(`([a-z]*)="(.*)-label"`)

// errKnownCategoryMissing reports a filter category discovery never found.
var errKnownCategoryMissing = errors.New("filter category not discovered")

// parseFieldLabel extracts the referencing attribute name and the dropdown
// element id from a data-analytics-field-label value.
func parseFieldLabel(attr string) (tag, id string, ok bool) {
	m := fieldLabelPattern.FindStringSubmatch(attr)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// discoverDropdowns finds every attribute-tagged filter widget inside the
// pricing frame and captures its selectors and option catalog. Each
// dropdown is opened once to read its options and closed again.
func (d *Driver) discoverDropdowns() error {
	err := d.run(context.Background(), chromedp.WaitVisible("[data-analytics-field-label]", chromedp.ByQuery))
	if err != nil {
		return driverErr("discover filters", err)
	}

	var attrs []string
	err = d.run(context.Background(), chromedp.Evaluate(fieldLabelAttrsJS, &attrs))
	if err != nil {
		return driverErr("discover filters", err)
	}
	if len(attrs) == 0 {
		return driverErr("discover filters", errors.New("no data-analytics-field-label elements"))
	}
	d.logger.Debug("filter widgets found", zap.Int("count", len(attrs)))

	for _, attr := range attrs {
		tag, id, ok := parseFieldLabel(attr)
		if !ok {
			d.logger.Error("cannot derive selectors from field label", zap.String("attr", attr))
			continue
		}
		if tag != "id" {
			d.logger.Warn("possibly ambiguous identifier for dropdown", zap.String("tag", tag), zap.String("attr", attr))
		}

		labelSel := fmt.Sprintf("[%s='%s-label']", tag, id)
		buttonSel := fmt.Sprintf("button[%s='%s']", tag, id)
		optionsSel := fmt.Sprintf(`[data-analytics-field-label='%s'] ul[role="listbox"] li`, attr)

		var category string
		if err := d.run(context.Background(), chromedp.Text(labelSel, &category, chromedp.ByQuery)); err != nil {
			return driverErr("discover filters", fmt.Errorf("category label %s: %w", labelSel, err))
		}
		category = strings.TrimSpace(category)

		texts, err := d.readOptions(buttonSel, optionsSel)
		if err != nil {
			return driverErr("discover filters", fmt.Errorf("options for %q: %w", category, err))
		}

		switch category {
		case categoryRegion, categoryOS, categoryInstanceType, categoryVCPU, categoryLocationType:
			d.dropdowns[category] = &dropdown{
				button:  buttonSel,
				options: optionsSel,
				values:  catalogValues(category, texts),
			}
			d.logger.Debug("filter discovered",
				zap.String("category", category),
				zap.Int("options", len(texts)))
		default:
			d.logger.Warn("unsupported filter category", zap.String("category", category))
		}
	}

	for _, required := range []string{categoryRegion, categoryOS, categoryLocationType} {
		if _, ok := d.dropdowns[required]; !ok {
			return driverErr("discover filters", fmt.Errorf("%w: %s", errKnownCategoryMissing, required))
		}
	}
	return nil
}

// readOptions opens a dropdown, reads its option texts and closes it again.
func (d *Driver) readOptions(buttonSel, optionsSel string) ([]string, error) {
	if err := d.run(context.Background(), chromedp.Click(buttonSel, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	var texts []string
	err := d.run(context.Background(),
		chromedp.Sleep(d.cfg.Settle/2),
		chromedp.Evaluate(optionTextsJS(optionsSel), &texts),
	)
	if closeErr := d.run(context.Background(), chromedp.Click(buttonSel, chromedp.ByQuery)); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return texts, nil
}

// catalogValues turns raw option texts into catalog entries. Region options
// render as a display name with the region code on the last line; only
// entries whose code matches the region shape are kept. Other categories
// keep the full option text.
func catalogValues(category string, texts []string) []string {
	values := make([]string, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if category == categoryRegion {
			if code, ok := regionOptionCode(text); ok {
				values = append(values, code)
			}
			continue
		}
		values = append(values, text)
	}
	return values
}

// regionOptionCode extracts the region code from a region option's text.
func regionOptionCode(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	code := strings.TrimSpace(lines[len(lines)-1])
	if !pricing.IsRegion(code) {
		return "", false
	}
	return code, true
}

// ListRegions returns the region catalog captured at session bring-up.
func (d *Driver) ListRegions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dd, ok := d.dropdowns[categoryRegion]
	if !ok {
		return nil, driverErr("list regions", errKnownCategoryMissing)
	}
	return append([]string(nil), dd.values...), nil
}

// ListOperatingSystems returns the operating system catalog captured at
// session bring-up.
func (d *Driver) ListOperatingSystems(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dd, ok := d.dropdowns[categoryOS]
	if !ok {
		return nil, driverErr("list operating systems", errKnownCategoryMissing)
	}
	return append([]string(nil), dd.values...), nil
}

// SelectOperatingSystem filters the table to one operating system. Returns
// ErrUnknownOS when the page offers no such option; the session stays
// usable in that case.
func (d *Driver) SelectOperatingSystem(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.selectOption(categoryOS, name); err != nil {
		if isUnknownSelection(err) {
			return fmt.Errorf("%w: %q", ErrUnknownOS, name)
		}
		return err
	}
	return nil
}

// SelectRegion filters the table to one region. Returns ErrUnknownRegion
// when the page offers no such option; the session stays usable.
func (d *Driver) SelectRegion(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.selectOption(categoryRegion, name); err != nil {
		if isUnknownSelection(err) {
			return fmt.Errorf("%w: %q", ErrUnknownRegion, name)
		}
		return err
	}
	return nil
}

// errNoMatchingOption distinguishes a missing option from a broken session
// inside selectOption. Callers translate it to the public sentinels.
var errNoMatchingOption = errors.New("no matching option")

func isUnknownSelection(err error) bool {
	return errors.Is(err, errNoMatchingOption)
}

// selectOption opens a category's dropdown and clicks the first option
// whose text contains name. Option matching is by substring so a region
// code matches its composite display entry.
func (d *Driver) selectOption(category, name string) error {
	dd, ok := d.dropdowns[category]
	if !ok {
		return driverErr("select "+strings.ToLower(category), errKnownCategoryMissing)
	}
	op := "select " + strings.ToLower(category)

	if err := d.run(context.Background(), chromedp.Click(dd.button, chromedp.ByQuery)); err != nil {
		return driverErr(op, err)
	}

	var clicked bool
	err := d.run(context.Background(),
		chromedp.Sleep(d.cfg.Settle/2),
		chromedp.Evaluate(clickOptionJS(dd.options, name), &clicked),
		chromedp.Sleep(d.cfg.Settle/2),
	)
	if err != nil {
		return driverErr(op, err)
	}
	if !clicked {
		// Leave the listbox closed so the next interaction starts clean.
		if err := d.run(context.Background(), chromedp.Click(dd.button, chromedp.ByQuery)); err != nil {
			return driverErr(op, err)
		}
		return fmt.Errorf("%w: %s %q", errNoMatchingOption, category, name)
	}

	d.logger.Debug("filter applied", zap.String("category", category), zap.String("value", name))
	return nil
}
