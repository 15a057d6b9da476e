package genai

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	err := ParseStream(strings.NewReader(input), func(e StreamEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	return events
}

func TestParseSSE(t *testing.T) {
	input := "data: {\"content\":\"你好\"}\n" +
		"\n" +
		"data: {\"content\":\"，请描述症状\"}\n" +
		"data: [DONE]\n"

	events := collect(t, input)
	require.Len(t, events, 3)
	assert.Equal(t, "你好", events[0].Content)
	assert.Equal(t, "，请描述症状", events[1].Content)
	assert.True(t, events[2].Done)
}

func TestParseNDJSON(t *testing.T) {
	input := "{\"content\":\"a\"}\n{\"content\":\"b\"}\n{\"content\":\"\",\"done\":true}\n"

	events := collect(t, input)
	want := []StreamEvent{
		{Content: "a"},
		{Content: "b"},
		{Done: true},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStopsAtDoneEvent(t *testing.T) {
	input := "{\"content\":\"x\",\"done\":true}\n{\"content\":\"never\"}\n"

	events := collect(t, input)
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
}

func TestParseConcatenatedObjects(t *testing.T) {
	input := "{\"content\":\"a\"}{\"content\":\"b{not a brace}\"}\n"

	events := collect(t, input)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "b{not a brace}", events[1].Content)
}

func TestParseRepairsMalformedFragment(t *testing.T) {
	// Unterminated object, as produced by a connection cut mid-chunk.
	input := "{\"content\":\"partial\"\n"

	events := collect(t, input)
	require.Len(t, events, 1)
	assert.Equal(t, "partial", events[0].Content)
}

func TestParseSkipsGarbage(t *testing.T) {
	input := ": keepalive\n<<<not json at all>>>\n{\"content\":\"ok\"}\n"

	events := collect(t, input)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Content)
}

func TestParseErrorEvent(t *testing.T) {
	input := "{\"error\":\"model overloaded\",\"done\":true}\n"

	events := collect(t, input)
	require.Len(t, events, 1)
	assert.Equal(t, "model overloaded", events[0].Error)
	assert.True(t, events[0].Done)
}

func TestSplitConcatenated(t *testing.T) {
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, splitConcatenated(`{"a":1}{"b":2}`))
	assert.Equal(t, []string{`{"a":"}"}`}, splitConcatenated(`{"a":"}"}`))
	assert.Equal(t, []string{"plain text"}, splitConcatenated("plain text"))
	assert.Equal(t, []string{`{"a":1}`, `{"trunc":`}, splitConcatenated(`{"a":1}{"trunc":`))
}
