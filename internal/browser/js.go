package browser

import "fmt"

// selectionRootSelector scopes table and paginator queries to the pricing
// widget.
const selectionRootSelector = "[data-selection-root]"

// fieldLabelAttrsJS collects the raw data-analytics-field-label attribute
// values of every filter widget.
const fieldLabelAttrsJS = `Array.from(document.querySelectorAll('[data-analytics-field-label]')).map(el => el.getAttribute('data-analytics-field-label'))`

// currentPageJS reads the paginator's highlighted page number, 0 when no
// paginator is present.
const currentPageJS = `(() => {
	const cur = document.querySelector("` + selectionRootSelector + ` li > button[aria-current='true']");
	if (!cur) return 0;
	return parseInt(cur.innerText, 10) || 0;
})()`

// totalPagesJS reads the last numbered page from the paginator. The final
// list item is the "next" arrow, so the page count sits second to last.
const totalPagesJS = `(() => {
	const cur = document.querySelector("` + selectionRootSelector + ` li > button[aria-current='true']");
	if (!cur) return 0;
	const lis = cur.closest('ul').querySelectorAll('li');
	if (lis.length < 2) return 0;
	return parseInt(lis[lis.length - 2].innerText, 10) || 0;
})()`

// firstPageJS clicks the first numbered page. The leading list item is the
// "previous" arrow, so page one sits at index 1.
const firstPageJS = `(() => {
	const cur = document.querySelector("` + selectionRootSelector + ` li > button[aria-current='true']");
	if (!cur) return false;
	const lis = cur.closest('ul').querySelectorAll('li');
	if (lis.length < 2) return false;
	const li = lis[1];
	(li.querySelector('button') || li).click();
	return true;
})()`

// nextPageJS clicks the trailing "next" arrow of the paginator.
const nextPageJS = `(() => {
	const cur = document.querySelector("` + selectionRootSelector + ` li > button[aria-current='true']");
	if (!cur) return false;
	const lis = cur.closest('ul').querySelectorAll('li');
	if (lis.length < 1) return false;
	const li = lis[lis.length - 1];
	(li.querySelector('button') || li).click();
	return true;
})()`

// pageRowsJS extracts the visible table body as cell text, one slice per
// row.
const pageRowsJS = `Array.from(document.querySelectorAll("` + selectionRootSelector + ` table tbody tr")).map(tr => Array.from(tr.querySelectorAll('td')).map(td => td.innerText))`

// advertisedCountJS reads the widget heading that announces how many
// instances match the current filters.
const advertisedCountJS = `(() => {
	const el = document.querySelector("` + selectionRootSelector + ` h2 span");
	return el ? el.innerText : '';
})()`

// optionTextsJS lists the option texts of an open dropdown.
func optionTextsJS(optionsSel string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(li => li.innerText)`, optionsSel)
}

// clickOptionJS clicks the first open-dropdown option whose text contains
// name and reports whether anything matched.
func clickOptionJS(optionsSel, name string) string {
	return fmt.Sprintf(`(() => {
	const lis = Array.from(document.querySelectorAll(%q));
	for (const li of lis) {
		if ((li.innerText || '').includes(%q)) { li.click(); return true; }
	}
	return false;
})()`, optionsSel, name)
}

// clickSidebarLinkJS clicks the sidebar link with the exact given text and
// reports whether it was found.
func clickSidebarLinkJS(sidebarSel, text string) string {
	return fmt.Sprintf(`(() => {
	const root = document.querySelector(%q);
	if (!root) return false;
	for (const a of root.querySelectorAll('a')) {
		if ((a.textContent || '').trim() === %q) { a.click(); return true; }
	}
	return false;
})()`, sidebarSel, text)
}
