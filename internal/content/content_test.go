package content

import (
	"strings"
	"testing"
)

const scriptJSON = `{
	"title": "Deep Sea Wonders",
	"tags": ["ocean", "nature"],
	"scenes": [
		{"text": "The ocean covers most of our planet.", "image": "aerial shot of a vast blue ocean"},
		{"text": "Below the surface lies a hidden world.", "image": "sunbeams piercing dark water"}
	]
}`

func TestParseScriptAcceptsFencedJSON(t *testing.T) {
	fenced := "```json\n" + scriptJSON + "\n```"

	c, err := parseScript(fenced)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if c.Title != "Deep Sea Wonders" || len(c.Scenes) != 2 {
		t.Fatalf("unexpected script: %+v", c)
	}
}

func TestParseScriptSalvagesSurroundingChatter(t *testing.T) {
	noisy := "Sure, here is your script:\n" + scriptJSON + "\nLet me know if you need changes."

	c, err := parseScript(noisy)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(c.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(c.Scenes))
	}
}

func TestNormalizeFillsSceneTitlesAndDescription(t *testing.T) {
	c, err := parseScript(scriptJSON)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := normalize(&c); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if c.Scenes[0].Title != "Scene 1" || c.Scenes[1].Title != "Scene 2" {
		t.Fatalf("expected generated scene titles, got %q %q", c.Scenes[0].Title, c.Scenes[1].Title)
	}
	if !strings.Contains(c.Description, "hidden world") {
		t.Fatalf("expected description joined from narration, got %q", c.Description)
	}
}

func TestNormalizeRejectsSceneWithoutNarration(t *testing.T) {
	c, err := parseScript(`{"title": "t", "scenes": [{"text": "", "image": "x"}]}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := normalize(&c); err == nil {
		t.Fatal("expected validation error for empty narration")
	}
}
