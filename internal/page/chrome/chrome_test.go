package chrome

import (
	"math"
	"strings"
	"testing"

	"github.com/ibeckermayer/reelsort/internal/page"
)

func TestExpression(t *testing.T) {
	tests := []struct {
		fn   string
		args []any
		want string
	}{
		{"snapshot", nil, `window.__reelsort.snapshot()`},
		{"setInner", []any{"c12", `<a href="/reel/x/">"hi"</a>`}, `window.__reelsort.setInner("c12","\u003ca href=\"/reel/x/\"\u003e\"hi\"\u003c/a\u003e")`},
		{"scrollBy", []any{640.5}, `window.__reelsort.scrollBy(640.5)`},
		{"menu", []any{[]page.MenuEntry{{Command: "unsort", Label: "Restore"}}}, `window.__reelsort.menu([{"command":"unsort","label":"Restore"}])`},
	}
	for _, tt := range tests {
		got, err := expression(tt.fn, tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.fn, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s:\n got %s\nwant %s", tt.fn, got, tt.want)
		}
	}

	if _, err := expression("scrollTo", math.NaN()); err == nil {
		t.Error("NaN encoded")
	}
}

func TestSupportScriptExports(t *testing.T) {
	for _, name := range []string{
		"snapshot", "setInner", "insert", "setStyle", "exists", "scrollBy", "scrollTo",
		"playbackRate", "observe", "unobserve", "menu", mutationBinding, menuBinding,
	} {
		if !strings.Contains(supportJS, name) {
			t.Errorf("support script lacks %s", name)
		}
	}
}
