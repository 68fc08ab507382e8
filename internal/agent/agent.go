package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chris/lens/internal/llm"
	"github.com/chris/lens/internal/search"
	"github.com/chris/lens/internal/vision"
)

// Capability tags which kinds of augmentation contributed to a response.
// Observability only; nothing branches on these.
type Capability string

const (
	CapabilityAssistantKnowledge Capability = "assistant_knowledge"
	CapabilityWebSearch          Capability = "web_search"
	CapabilityVision             Capability = "vision"
	CapabilityReverseImageSearch Capability = "reverse_image_search"
)

// SearchClient is the web-search backend.
type SearchClient interface {
	Search(ctx context.Context, sr search.Request) (*search.Result, error)
}

// VisionClient is the image-analysis backend. The system prompt varies per
// call, so it is part of the request.
type VisionClient interface {
	Analyze(ctx context.Context, systemPrompt, query string, image []byte) (*vision.Result, error)
}

type Agent struct {
	client       llm.Client
	search       SearchClient
	vision       VisionClient
	model        string // chat model identifier, for token accounting
	learnContext bool
}

func New(client llm.Client, searchClient SearchClient, visionClient VisionClient, model string, learnContext bool) *Agent {
	return &Agent{
		client:       client,
		search:       searchClient,
		vision:       visionClient,
		model:        model,
		learnContext: learnContext,
	}
}

// Request is one user turn. History is the caller's conversation so far,
// excluding the new prompt; the agent copies it and never mutates or retains
// the caller's slice.
type Request struct {
	Prompt         string
	Image          []byte // camera frame, nil when none was captured
	History        []llm.Message
	Location       string
	LocalTime      string
	LearnedContext map[string]string // durable user facts supplied by the caller
}

// Response is the assembled result of one turn.
type Response struct {
	Text              string
	TokenUsageByModel map[string]*llm.TokenUsage
	CapabilitiesUsed  []Capability
	LearnedContext    map[string]string // facts known after this turn, for the caller to persist
	DebugTools        string            // JSON tool trace
}

// Assist runs one turn: prepare history, first completion (tools offered),
// concurrent tool execution if requested, second completion over the tool
// outputs, assemble the response. A completion or tool-backend failure aborts
// the whole turn; malformed model output (bad arguments, hallucinated tools)
// never does.
func (a *Agent) Assist(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	// Working copy of history: the tool and grounding messages added below
	// are turn-internal and must not leak back to the caller.
	messages := make([]llm.Message, len(req.History))
	copy(messages, req.History)

	// The first message submitted to the model must be a system message;
	// inject the default unless the caller brought their own.
	if len(messages) == 0 || messages[0].Role != llm.RoleSystem {
		messages = append([]llm.Message{{Role: llm.RoleSystem, Content: llm.SystemPrompt}}, messages...)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Prompt})
	messages = llm.PruneHistory(messages)

	learned := make(map[string]string, len(req.LearnedContext))
	for k, v := range req.LearnedContext {
		learned[k] = v
	}

	t := &turn{
		agent: a,
		env: toolEnv{
			userMessage: req.Prompt,
			image:       req.Image,
			location:    req.Location,
			localTime:   req.LocalTime,
			learned:     learned,
		},
		usage: make(map[string]*llm.TokenUsage),
	}

	// Best-effort fact extraction feeds this turn's grounding block and the
	// caller's fact store. Failure is logged, never fatal.
	if a.learnContext {
		extracted, err := t.extractLearnedContext(ctx, messages)
		if err != nil {
			log.Printf("learned context extraction failed: %v", err)
		}
		for k, v := range extracted {
			learned[k] = v
		}
	}

	// Grounding goes in as a second system message rather than being merged
	// into the primary one; the completion endpoint tolerates multiple system
	// messages and this keeps concerns separated.
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: contextMessage(req.LocalTime, req.Location, learned),
	})

	t.addToolRecord(map[string]any{"learned_context": learned})

	first, err := a.client.Chat(ctx, messages, llm.AgentTools)
	if err != nil {
		return nil, fmt.Errorf("first completion: %w", err)
	}
	t.addUsage(a.model, first.Usage)

	// Used verbatim if the model requested no tools.
	finalText := first.Content

	if len(first.ToolCalls) > 0 {
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   first.Content,
			ToolCalls: first.ToolCalls,
		})

		// Fan out: every requested tool runs concurrently. Outputs and errors
		// land in slices indexed by request position so the fan-in below can
		// preserve the original call order no matter when each finishes.
		outputs := make([]string, len(first.ToolCalls))
		errs := make([]error, len(first.ToolCalls))
		var wg sync.WaitGroup
		for i, call := range first.ToolCalls {
			wg.Add(1)
			go func(i int, call llm.ToolCall) {
				defer wg.Done()
				outputs[i], errs[i] = t.handleToolCall(ctx, call)
			}(i, call)
		}
		wg.Wait()

		// No per-call isolation: a failed backend fails the turn. First error
		// in request order wins.
		for i, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", first.ToolCalls[i].Name, err)
			}
		}

		for i, call := range first.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    outputs[i],
				ToolCallID: call.ID,
			})
		}

		// Second completion folds the tool outputs into the final answer. No
		// tool catalog this time; the turn protocol is exactly two calls.
		second, err := a.client.Chat(ctx, messages, nil)
		if err != nil {
			return nil, fmt.Errorf("second completion: %w", err)
		}
		t.addUsage(a.model, second.Usage)
		finalText = second.Content
	}

	// Every turn reports at least one capability.
	if len(t.capabilities) == 0 {
		t.capabilities = append(t.capabilities, CapabilityAssistantKnowledge)
	}

	debugTools, _ := json.Marshal(t.toolsUsed) // records are plain maps; marshal cannot fail

	log.Printf("turn complete in %.3fs (capabilities: %v)", time.Since(start).Seconds(), t.capabilities)

	return &Response{
		Text:              finalText,
		TokenUsageByModel: t.usage,
		CapabilitiesUsed:  t.capabilities,
		LearnedContext:    learned,
		DebugTools:        string(debugTools),
	}, nil
}

// toolEnv is the ambient state every tool handler may draw on. These are
// capability grants injected by the orchestrator, never model-controlled, and
// never part of any tool's advertised schema.
type toolEnv struct {
	userMessage string
	image       []byte
	location    string
	localTime   string
	learned     map[string]string
}

// turn accumulates the shared per-turn state that concurrent tool handlers
// write: token usage, capability tags, and the debug tool trace. All writes
// go through the mutex; the message history is only ever touched by the
// orchestrator goroutine.
type turn struct {
	agent *Agent
	env   toolEnv

	mu           sync.Mutex
	usage        map[string]*llm.TokenUsage
	capabilities []Capability
	toolsUsed    []map[string]any
}

func (t *turn) addUsage(model string, u llm.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	llm.AccumulateTokenUsage(t.usage, model, u)
}

func (t *turn) addCapability(c Capability) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capabilities = append(t.capabilities, c)
}

func (t *turn) addToolRecord(record map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toolsUsed = append(t.toolsUsed, record)
}
