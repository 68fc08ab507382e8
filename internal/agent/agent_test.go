package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chris/lens/internal/llm"
	"github.com/chris/lens/internal/search"
	"github.com/chris/lens/internal/vision"
)

// --- Fakes ---

type chatCall struct {
	messages []llm.Message
	tools    []llm.Tool
}

// fakeLLM replays a scripted sequence of completion responses and records
// every request it sees.
type fakeLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     []chatCall
	err       error
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)
	f.calls = append(f.calls, chatCall{messages: msgs, tools: tools})
	if len(f.responses) == 0 {
		return &llm.Response{}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

type fakeSearch struct {
	mu       sync.Mutex
	result   *search.Result
	err      error
	delay    time.Duration
	requests []search.Request
}

func (f *fakeSearch) Search(ctx context.Context, sr search.Request) (*search.Result, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.requests = append(f.requests, sr)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type visionCall struct {
	systemPrompt string
	query        string
	image        []byte
}

type fakeVision struct {
	mu     sync.Mutex
	result *vision.Result
	err    error
	calls  []visionCall
}

func (f *fakeVision) Analyze(ctx context.Context, systemPrompt, query string, image []byte) (*vision.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, visionCall{systemPrompt: systemPrompt, query: query, image: image})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

const testModel = "test-model"

func newTestAgent(client llm.Client, sc SearchClient, vc VisionClient) *Agent {
	return New(client, sc, vc, testModel, false)
}

func hasCapability(caps []Capability, want Capability) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}

// --- Scenario A: no tool calls ---

func TestAssist_NoToolCalls(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		{Content: "The capital of France is Paris.", Usage: llm.Usage{InputTokens: 20, OutputTokens: 8, TotalTokens: 28}},
	}}
	ag := newTestAgent(client, &fakeSearch{}, &fakeVision{})

	resp, err := ag.Assist(context.Background(), Request{Prompt: "What's the capital of France?"})
	if err != nil {
		t.Fatalf("Assist: %v", err)
	}

	if resp.Text != "The capital of France is Paris." {
		t.Errorf("expected first completion's content, got %q", resp.Text)
	}
	if len(resp.CapabilitiesUsed) != 1 || resp.CapabilitiesUsed[0] != CapabilityAssistantKnowledge {
		t.Errorf("expected [assistant_knowledge], got %v", resp.CapabilitiesUsed)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected exactly 1 completion call, got %d", len(client.calls))
	}
	if len(client.calls[0].tools) != len(llm.AgentTools) {
		t.Errorf("first call should offer the full tool catalog, got %d tools", len(client.calls[0].tools))
	}

	u := resp.TokenUsageByModel[testModel]
	if u == nil || u.TotalTokens != 28 {
		t.Errorf("expected 28 total tokens for %s, got %+v", testModel, u)
	}
}

func TestAssist_InjectsSystemAndGrounding(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{{Content: "hi"}}}
	ag := newTestAgent(client, &fakeSearch{}, &fakeVision{})

	_, err := ag.Assist(context.Background(), Request{Prompt: "hello", LocalTime: "Friday, 3 PM"})
	if err != nil {
		t.Fatalf("Assist: %v", err)
	}

	msgs := client.calls[0].messages
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != llm.SystemPrompt {
		t.Errorf("first message should be the default system prompt, got role=%s", msgs[0].Role)
	}
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleSystem || !strings.HasPrefix(last.Content, llm.ContextPrefix) {
		t.Errorf("last message should be the grounding block, got role=%s content=%q", last.Role, last.Content)
	}
	if !strings.Contains(last.Content, "<current_time>Friday, 3 PM</current_time>") {
		t.Errorf("grounding block missing local time: %q", last.Content)
	}
}

func TestAssist_KeepsCallerSystemMessage(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{{Content: "ok"}}}
	ag := newTestAgent(client, &fakeSearch{}, &fakeVision{})

	history := []llm.Message{{Role: llm.RoleSystem, Content: "custom persona"}}
	_, err := ag.Assist(context.Background(), Request{Prompt: "hello", History: history})
	if err != nil {
		t.Fatalf("Assist: %v", err)
	}

	msgs := client.calls[0].messages
	if msgs[0].Content != "custom persona" {
		t.Errorf("caller's system message should survive, got %q", msgs[0].Content)
	}
	if len(history) != 1 {
		t.Errorf("caller's history slice was mutated: %d messages", len(history))
	}
}

// --- Scenario B: one search tool call ---

func TestAssist_SearchToolCall(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		{
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: llm.SearchToolName, Arguments: `{"query":"today's weather in Paris"}`}},
			Usage:     llm.Usage{TotalTokens: 30},
		},
		{Content: "It's sunny in Paris today.", Usage: llm.Usage{TotalTokens: 12}},
	}}
	sc := &fakeSearch{result: &search.Result{Summary: "Sunny, 25C in Paris", Provider: "gateway/serp"}}
	ag := newTestAgent(client, sc, &fakeVision{})

	resp, err := ag.Assist(context.Background(), Request{Prompt: "what's the weather?"})
	if err != nil {
		t.Fatalf("Assist: %v", err)
	}

	if len(sc.requests) != 1 {
		t.Fatalf("expected 1 search request, got %d", len(sc.requests))
	}
	if sc.requests[0].Query != "today's weather in Paris" {
		t.Errorf("unexpected search query %q", sc.requests[0].Query)
	}
	if sc.requests[0].Location != "unknown" {
		t.Errorf("location should default to \"unknown\", got %q", sc.requests[0].Location)
	}

	if len(client.calls) != 2 {
		t.Fatalf("expected 2 completion calls, got %d", len(client.calls))
	}
	if client.calls[1].tools != nil {
		t.Error("second completion must not offer a tool catalog")
	}

	// Tool output is threaded back as a tool-role message addressed to the call.
	var toolMsg *llm.Message
	for i := range client.calls[1].messages {
		if client.calls[1].messages[i].Role == llm.RoleTool {
			toolMsg = &client.calls[1].messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool-role message in second completion request")
	}
	if toolMsg.Content != "Sunny, 25C in Paris" || toolMsg.ToolCallID != "call_1" {
		t.Errorf("unexpected tool message: %+v", toolMsg)
	}

	if resp.Text != "It's sunny in Paris today." {
		t.Errorf("final text should come from second completion, got %q", resp.Text)
	}
	if !hasCapability(resp.CapabilitiesUsed, CapabilityWebSearch) {
		t.Errorf("expected web_search capability, got %v", resp.CapabilitiesUsed)
	}
	if u := resp.TokenUsageByModel[testModel]; u == nil || u.TotalTokens != 42 {
		t.Errorf("expected 42 accumulated tokens, got %+v", u)
	}
	if !strings.Contains(resp.DebugTools, `"tool":"search"`) {
		t.Errorf("debug trace missing search record: %s", resp.DebugTools)
	}
	if !strings.Contains(resp.DebugTools, `"search_result":"gateway/serp"`) {
		t.Errorf("debug trace missing provider metadata: %s", resp.DebugTools)
	}
}

// --- Scenario C: concurrent tool calls keep request order ---

func TestAssist_ConcurrentToolCallsPreserveOrder(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		{
			ToolCalls: []llm.ToolCall{
				{ID: "call_a", Name: llm.SearchToolName, Arguments: `{"query":"eiffel tower hours"}`},
				{ID: "call_b", Name: llm.PhotoToolName, Arguments: `{"query":"describe this","google_reverse_image_search":false,"translate":false}`},
			},
		},
		{Content: "combined answer"},
	}}
	// The first-requested tool finishes last; order must still hold.
	sc := &fakeSearch{result: &search.Result{Summary: "open until 11pm"}, delay: 50 * time.Millisecond}
	vc := &fakeVision{result: &vision.Result{Text: "a metal tower", Model: "vision-model"}}
	ag := newTestAgent(client, sc, vc)

	resp, err := ag.Assist(context.Background(), Request{Prompt: "look at this", Image: []byte{0xff, 0xd8}})
	if err != nil {
		t.Fatalf("Assist: %v", err)
	}

	var toolMsgs []llm.Message
	for _, m := range client.calls[1].messages {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("expected 2 tool messages, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "call_a" || toolMsgs[1].ToolCallID != "call_b" {
		t.Errorf("tool messages out of request order: %s then %s", toolMsgs[0].ToolCallID, toolMsgs[1].ToolCallID)
	}
	if toolMsgs[0].Content != "open until 11pm" || toolMsgs[1].Content != "a metal tower" {
		t.Errorf("tool outputs matched to wrong calls: %q / %q", toolMsgs[0].Content, toolMsgs[1].Content)
	}

	if !hasCapability(resp.CapabilitiesUsed, CapabilityWebSearch) || !hasCapability(resp.CapabilitiesUsed, CapabilityVision) {
		t.Errorf("expected web_search and vision capabilities, got %v", resp.CapabilitiesUsed)
	}
	if resp.TokenUsageByModel["vision-model"] == nil {
		t.Error("vision call usage was not accumulated")
	}
}

// --- Learned context extraction ---

func TestAssist_LearnedContextExtraction(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		// Extraction side call runs before the first completion.
		{Content: "UserName=Ada", Usage: llm.Usage{TotalTokens: 5}},
		{Content: "Nice to meet you, Ada.", Usage: llm.Usage{TotalTokens: 10}},
	}}
	ag := New(client, &fakeSearch{}, &fakeVision{}, testModel, true)

	resp, err := ag.Assist(context.Background(), Request{Prompt: "My name is Ada"})
	if err != nil {
		t.Fatalf("Assist: %v", err)
	}

	if resp.LearnedContext["UserName"] != "Ada" {
		t.Errorf("extracted fact missing from response: %v", resp.LearnedContext)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected extraction + completion calls, got %d", len(client.calls))
	}
	if client.calls[0].tools != nil {
		t.Error("extraction call must not offer tools")
	}
	if !strings.Contains(client.calls[0].messages[0].Content, "KEY=VALUE") {
		t.Errorf("extraction call missing its system prompt: %q", client.calls[0].messages[0].Content)
	}

	// The fresh fact grounds the same turn.
	main := client.calls[1].messages
	grounding := main[len(main)-1].Content
	if !strings.Contains(grounding, "<UserName>Ada</UserName>") {
		t.Errorf("grounding block missing extracted fact: %q", grounding)
	}
	if u := resp.TokenUsageByModel[testModel]; u == nil || u.TotalTokens != 15 {
		t.Errorf("extraction usage not accumulated: %+v", u)
	}
}

func TestAssist_ExtractionFailureIsNotFatal(t *testing.T) {
	// The extraction call errors; the scripted response is then consumed by
	// the main completion.
	client := &fakeLLM{responses: []*llm.Response{{Content: "hello"}}}
	flaky := &flakyLLM{first: errors.New("extraction down"), then: client}
	ag := New(flaky, &fakeSearch{}, &fakeVision{}, testModel, true)

	resp, err := ag.Assist(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("extraction failure must not abort the turn: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("turn should proceed to completion, got %q", resp.Text)
	}
}

// flakyLLM fails its first call and delegates the rest.
type flakyLLM struct {
	mu    sync.Mutex
	first error
	then  *fakeLLM
}

func (f *flakyLLM) Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	f.mu.Lock()
	if f.first != nil {
		err := f.first
		f.first = nil
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()
	return f.then.Chat(ctx, messages, tools)
}

// --- Failure semantics ---

func TestAssist_ToolBackendFailureAbortsTurn(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: llm.SearchToolName, Arguments: `{"query":"x"}`}}},
	}}
	sc := &fakeSearch{err: errors.New("gateway timeout")}
	ag := newTestAgent(client, sc, &fakeVision{})

	_, err := ag.Assist(context.Background(), Request{Prompt: "search something"})
	if err == nil {
		t.Fatal("expected the turn to fail when a tool backend fails")
	}
	if !strings.Contains(err.Error(), "gateway timeout") {
		t.Errorf("error should carry the backend cause, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Errorf("no second completion should happen after a tool failure, got %d calls", len(client.calls))
	}
}

func TestAssist_CompletionFailureAbortsTurn(t *testing.T) {
	client := &fakeLLM{err: errors.New("backend down")}
	ag := newTestAgent(client, &fakeSearch{}, &fakeVision{})

	_, err := ag.Assist(context.Background(), Request{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error when completion backend fails")
	}
}

// --- Hallucinated tool name is recoverable ---

func TestAssist_HallucinatedToolContinuesTurn(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "xyz_tool", Arguments: `{}`}}},
		{Content: "Could you rephrase that?"},
	}}
	ag := newTestAgent(client, &fakeSearch{}, &fakeVision{})

	resp, err := ag.Assist(context.Background(), Request{Prompt: "do the thing"})
	if err != nil {
		t.Fatalf("hallucinated tool must not fail the turn: %v", err)
	}

	var toolMsg string
	for _, m := range client.calls[1].messages {
		if m.Role == llm.RoleTool {
			toolMsg = m.Content
		}
	}
	if toolMsg != hallucinatedToolMessage {
		t.Errorf("expected hallucination error as tool content, got %q", toolMsg)
	}
	if !strings.Contains(resp.DebugTools, `"hallucinated":"true"`) {
		t.Errorf("debug trace missing hallucination record: %s", resp.DebugTools)
	}
}
