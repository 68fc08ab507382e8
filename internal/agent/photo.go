package agent

import (
	"context"
	"strings"

	"github.com/chris/lens/internal/llm"
	"github.com/chris/lens/internal/search"
)

// noPhotoMessage is the tool response when the model asked for photo analysis
// but no frame arrived with the turn. Phrasing it as "Tell user:" keeps the
// final assistant answer on script.
const noPhotoMessage = "Error: no photo supplied. Tell user: I think you're referring to something you can see. Can you provide a photo?"

// photoTool handles the analyze_photo tool. Three outcomes:
//
//  1. No frame available: a recoverable instruction asking the user for one.
//  2. Reverse image search requested (and no translation): ask the vision
//     backend for a search query, then run a web search with the query and
//     the frame.
//  3. Everything else: direct analysis by the vision backend. Translation
//     always takes this path, even when the model also set the
//     reverse-image flag.
//
// Returns the tool output plus search provider metadata when a search ran.
func (t *turn) photoTool(ctx context.Context, args map[string]any) (string, string, error) {
	query := argString(args, llm.QueryParam)
	reverseImageSearch := argBool(args, llm.ReverseImageParam)
	translate := argBool(args, llm.TranslateParam)

	// Glasses always send a frame but other clients may not.
	if len(t.env.image) == 0 {
		return noPhotoMessage, "", nil
	}

	// Both vision prompts get the same grounding block as the rest of the
	// turn so the sub-model shares the assistant's sense of time and place.
	grounding := "\n\n" + contextMessage(t.env.localTime, t.env.location, t.env.learned)

	if reverseImageSearch && !translate {
		t.addCapability(CapabilityReverseImageSearch)
		vres, err := t.agent.vision.Analyze(ctx, llm.VisionSearchQueryPrompt+grounding, query, t.env.image)
		if err != nil {
			return "", "", err
		}
		t.addUsage(vres.Model, vres.Usage)

		// The vision model tends to quote its suggested query.
		sres, err := t.agent.search.Search(ctx, search.Request{
			Query:    strings.Trim(vres.Text, `"`),
			Location: argString(args, llm.LocationParam),
			Image:    t.env.image,
		})
		if err != nil {
			return "", "", err
		}
		return sres.Summary, sres.Provider, nil
	}

	t.addCapability(CapabilityVision)
	vres, err := t.agent.vision.Analyze(ctx, llm.VisionDescribePrompt+grounding, query, t.env.image)
	if err != nil {
		return "", "", err
	}
	t.addUsage(vres.Model, vres.Usage)
	return vres.Text, "", nil
}
