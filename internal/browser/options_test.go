package browser

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
)

func TestAllocatorOptionsExtendDefaults(t *testing.T) {
	headless := AllocatorOptions(true)
	headful := AllocatorOptions(false)

	assert.Greater(t, len(headless), len(chromedp.DefaultExecAllocatorOptions))
	assert.Len(t, headless, len(headful)+1, "headless adds disable-gpu")
}

func TestExtractScriptEmbedsHandle(t *testing.T) {
	js := extractScript(`al"ice`)
	assert.Contains(t, js, `"al\"ice"`)
	assert.Contains(t, js, `article[data-testid="tweet"]`)
}

func TestKeyEventFor(t *testing.T) {
	keys, mods, err := keyEventFor("Ctrl+Enter")
	assert.NoError(t, err)
	assert.Equal(t, "\r", keys)
	assert.True(t, mods)

	keys, mods, err = keyEventFor("Space")
	assert.NoError(t, err)
	assert.Equal(t, " ", keys)
	assert.False(t, mods)

	keys, _, err = keyEventFor("r")
	assert.NoError(t, err)
	assert.Equal(t, "r", keys)

	_, _, err = keyEventFor("Hyper+Q")
	assert.Error(t, err)
}

func TestIsHomeURL(t *testing.T) {
	assert.True(t, isHomeURL("https://x.com/home"))
	assert.True(t, isHomeURL("https://twitter.com/home"))
	assert.False(t, isHomeURL("https://x.com/i/flow/login"))
}
