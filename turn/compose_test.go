package turn

import (
	"strings"
	"testing"

	"github.com/richinex/oraculo/augment"
	"github.com/richinex/oraculo/llm"
)

func TestComposeOrderIsFixed(t *testing.T) {
	out := Compose(nil, "pregunta", "VISION", "SEARCH-BLOCK", "EXTRACT-BLOCK", "DOC-BLOCK", 20_000, 120_000)

	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	want := "pregunta\n\nVISION\n\nSEARCH-BLOCK\n\nEXTRACT-BLOCK\n\nDOC-BLOCK"
	if out[0].Content != want {
		t.Errorf("expected fixed concatenation order, got %q", out[0].Content)
	}
	if out[0].Role != llm.RoleUser {
		t.Errorf("final message must be a user message, got %q", out[0].Role)
	}
}

func TestComposeSkipsEmptyBlocks(t *testing.T) {
	out := Compose(nil, "pregunta", "", "SEARCH-BLOCK", "", "", 20_000, 120_000)

	want := "pregunta\n\nSEARCH-BLOCK"
	if out[0].Content != want {
		t.Errorf("empty blocks must not leave gaps, got %q", out[0].Content)
	}
}

func TestComposePreservesHistory(t *testing.T) {
	history := []llm.ChatMessage{
		llm.UserMessage("hola"),
		llm.AssistantMessage("hola, ¿en qué puedo ayudarte?"),
	}

	out := Compose(history, "otra pregunta", "", "", "", "", 20_000, 120_000)

	if len(out) != 3 {
		t.Fatalf("expected history plus final message, got %d", len(out))
	}
	if out[0].Content != "hola" || out[1].Content != "hola, ¿en qué puedo ayudarte?" {
		t.Error("prior messages must pass through unchanged")
	}
	if history[0].Content != "hola" {
		t.Error("input history must never be mutated")
	}
	if out[2].Content != "otra pregunta" {
		t.Errorf("unexpected final message: %q", out[2].Content)
	}
}

func TestComposeCapsOversizedBlocks(t *testing.T) {
	vision := strings.Repeat("v", 200)
	search := strings.Repeat("s", 200)
	out := Compose(nil, "pregunta", vision, search, "", "", 50, 0)

	content := out[0].Content
	if strings.Contains(content, strings.Repeat("v", 51)) || strings.Contains(content, strings.Repeat("s", 51)) {
		t.Errorf("each context block must be capped independently, got %q", content)
	}
	if strings.Count(content, augment.TruncationMarker()) != 2 {
		t.Errorf("every capped block must carry the truncation marker, got %q", content)
	}
}

func TestComposeGlobalBudget(t *testing.T) {
	doc := strings.Repeat("d", 500)
	out := Compose(nil, "pregunta", "", "", "", doc, 0, 100)

	content := out[0].Content
	if len(content) > 100+len(augment.TruncationMarker()) {
		t.Errorf("assembled message exceeds the global budget: %d bytes", len(content))
	}
	if !strings.HasSuffix(content, augment.TruncationMarker()) {
		t.Error("a globally trimmed message must end with the truncation marker")
	}
	if !strings.HasPrefix(content, "pregunta") {
		t.Error("the global budget must trim context, never the question")
	}
}
