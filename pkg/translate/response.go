package translate

import (
	"encoding/json"

	"github.com/lumenbridge/gatewayd/pkg/apierr"
	"github.com/lumenbridge/gatewayd/pkg/dialect"
)

// Response translates a synchronous Dialect G reply into a Dialect A
// message, taking the first candidate only.
func Response(resp *dialect.GoogleResponse, model string) (*dialect.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, apierr.New(apierr.KindUpstream, "upstream_error: candidates[0] missing", nil)
	}

	candidate := resp.Candidates[0]
	blocks := make([]dialect.Block, 0, len(candidate.Content.Parts))
	for _, part := range candidate.Content.Parts {
		switch {
		case part.Text != "":
			blocks = append(blocks, dialect.Block{Type: "text", Text: part.Text})
		case part.FunctionCall != nil:
			input, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				input = []byte("{}")
			}
			blocks = append(blocks, dialect.Block{
				Type:  "tool_use",
				ID:    "toolu_" + randomAlnum(12),
				Name:  part.FunctionCall.Name,
				Input: input,
			})
		}
	}

	out := &dialect.Response{
		ID:         "msg_" + randomAlnum(29),
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		Model:      model,
		StopReason: mapFinishReason(candidate.FinishReason),
	}

	if resp.UsageMetadata != nil {
		out.Usage = dialect.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}

	return out, nil
}

// mapFinishReason maps a Dialect G finish reason to the Dialect A
// stop_reason vocabulary. Unknown and empty reasons map to end_turn.
func mapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return dialect.StopEndTurn
	case "MAX_TOKENS":
		return dialect.StopMaxTokens
	case "SAFETY", "RECITATION":
		return dialect.StopSequenceStop
	default:
		return dialect.StopEndTurn
	}
}
