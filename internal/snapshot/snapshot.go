// Package snapshot captures visible interactive elements from a live page in
// the same shape the extension's content script reports them.
package snapshot

import (
	"context"
	"encoding/json"

	"github.com/playwright-community/playwright-go"

	"github.com/polzovatel/elder-web-guide/internal/page"
)

const defaultLimit = 150

// Collect walks the loaded page and returns interactive elements annotated
// with sequential "ai-N" ids, ready to feed into element matching.
func Collect(ctx context.Context, pg playwright.Page, limit int) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	script := `(limit) => {
		const pick = [];
		const nodes = document.querySelectorAll("a,button,input,select,textarea,[role],[tabindex],[onclick]");
		for (const el of nodes) {
			if (pick.length >= limit) break;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 && rect.height === 0) continue;
			const tag = el.tagName.toLowerCase();
			let text = (el.innerText || el.value || el.placeholder || el.getAttribute("aria-label") || "").trim();
			text = text.replace(/\s+/g, " ").slice(0, 120);
			const type = tag === "input" ? (el.getAttribute("type") || "text") : "";
			const role = el.getAttribute("role") || "";
			if (!text && !role && tag !== "input") continue;
			pick.push({id: "ai-" + (pick.length + 1), tag, text, type, role});
		}
		return pick;
	}`

	val, err := pg.Evaluate(script, limit)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var elems []page.Element
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	if err := page.ValidateSnapshot(elems); err != nil {
		return nil, err
	}
	return elems, nil
}
