package translate

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/lumenbridge/gatewayd/pkg/apierr"
	"github.com/lumenbridge/gatewayd/pkg/dialect"
	"github.com/lumenbridge/gatewayd/pkg/streaming"
)

const idleTimeout = 30 * time.Second

// streamState is the state machine driving a single streamed exchange.
type streamState int

const (
	streamInit streamState = iota
	streamStreaming
	streamDone
	streamError
)

type frame struct {
	resp *dialect.GoogleResponse
	err  error
}

// Stream reads the upstream's framed Dialect G chunks from r and re-emits
// them as a Dialect A event stream on w, following the state machine in
// §4.D. It returns when the stream completes, the client disconnects
// (ctx is cancelled), or the upstream idles for 30s.
func Stream(ctx context.Context, r io.Reader, w *streaming.SSEWriter, messageID, model string) error {
	frames := make(chan frame, 1)
	done := make(chan struct{})
	go pumpFrames(r, frames, done)
	defer close(done)

	state := streamInit
	textIndex := -1
	nextIndex := 0
	var lastFinishReason string
	var lastUsage *dialect.GoogleUsageMetadata

	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			_ = w.WriteJSON("error", map[string]string{"type": "stream_timeout"})
			return apierr.New(apierr.KindStreamTimeout, "stream_timeout: upstream idle for 30s", nil)

		case f, ok := <-frames:
			if err := ctx.Err(); err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idleTimeout)

			if f.err == io.EOF {
				if state == streamStreaming || state == streamInit {
					if err := finalizeStream(w, textIndex, lastFinishReason, lastUsage); err != nil {
						return err
					}
				}
				return nil
			}
			if f.err != nil {
				state = streamError
				_ = w.WriteJSON("error", map[string]string{"type": "stream_error", "message": f.err.Error()})
				return apierr.New(apierr.KindStream, "stream_error", f.err)
			}
			if f.resp == nil || len(f.resp.Candidates) == 0 {
				continue
			}

			candidate := f.resp.Candidates[0]
			if candidate.FinishReason != "" {
				lastFinishReason = candidate.FinishReason
			}
			if f.resp.UsageMetadata != nil {
				lastUsage = f.resp.UsageMetadata
			}

			if state == streamInit {
				state = streamStreaming
				if err := w.WriteJSON(dialect.EventMessageStart, dialect.MessageStartPayload{
					Type: "message_start",
					Message: dialect.StreamingMessage{
						ID:      messageID,
						Type:    "message",
						Role:    "assistant",
						Content: []dialect.Block{},
						Model:   model,
					},
				}); err != nil {
					return err
				}
			}

			for _, part := range candidate.Content.Parts {
				switch {
				case part.Text != "":
					if textIndex == -1 {
						textIndex = 0
						nextIndex = 1
						if err := w.WriteJSON(dialect.EventContentBlockStart, dialect.ContentBlockStartPayload{
							Type:         "content_block_start",
							Index:        textIndex,
							ContentBlock: dialect.Block{Type: "text", Text: ""},
						}); err != nil {
							return err
						}
					}
					if err := w.WriteJSON(dialect.EventContentBlockDelta, dialect.ContentBlockDeltaPayload{
						Type:  "content_block_delta",
						Index: textIndex,
						Delta: dialect.BlockDelta{Type: "text_delta", Text: part.Text},
					}); err != nil {
						return err
					}

				case part.FunctionCall != nil:
					index := nextIndex
					nextIndex++
					toolID := "toolu_" + randomAlnum(12)
					if err := w.WriteJSON(dialect.EventContentBlockStart, dialect.ContentBlockStartPayload{
						Type:  "content_block_start",
						Index: index,
						ContentBlock: dialect.Block{
							Type: "tool_use",
							ID:   toolID,
							Name: part.FunctionCall.Name,
						},
					}); err != nil {
						return err
					}

					argsJSON, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						argsJSON = []byte("{}")
					}
					if err := w.WriteJSON(dialect.EventContentBlockDelta, dialect.ContentBlockDeltaPayload{
						Type:  "content_block_delta",
						Index: index,
						Delta: dialect.BlockDelta{Type: "input_json_delta", PartialJSON: string(argsJSON)},
					}); err != nil {
						return err
					}
					if err := w.WriteJSON(dialect.EventContentBlockStop, dialect.ContentBlockStopPayload{
						Type:  "content_block_stop",
						Index: index,
					}); err != nil {
						return err
					}
				}
			}
		}
	}
}

func finalizeStream(w *streaming.SSEWriter, textIndex int, finishReason string, usage *dialect.GoogleUsageMetadata) error {
	if textIndex >= 0 {
		if err := w.WriteJSON(dialect.EventContentBlockStop, dialect.ContentBlockStopPayload{
			Type:  "content_block_stop",
			Index: textIndex,
		}); err != nil {
			return err
		}
	}

	outputTokens := 0
	if usage != nil {
		outputTokens = usage.CandidatesTokenCount
	}

	if err := w.WriteJSON(dialect.EventMessageDelta, dialect.MessageDeltaPayload{
		Type: "message_delta",
		Delta: dialect.MessageDeltaBody{
			StopReason:   mapFinishReason(finishReason),
			StopSequence: nil,
		},
		Usage: dialect.MessageDeltaUsage{OutputTokens: outputTokens},
	}); err != nil {
		return err
	}

	return w.WriteJSON(dialect.EventMessageStop, dialect.MessageStopPayload{Type: "message_stop"})
}

// pumpFrames reads SSE frames from r, decodes each data payload as a
// GoogleResponse chunk, and sends them on frames. Malformed JSON is
// dropped silently rather than surfaced as an error, per §4.D. It stops
// as soon as done is closed, so a cancelled Stream call doesn't leak this
// goroutine blocked on a channel send nobody will read.
func pumpFrames(r io.Reader, frames chan<- frame, done <-chan struct{}) {
	defer close(frames)
	parser := streaming.NewSSEParser(r)

	for {
		event, err := parser.Next()
		if err == io.EOF {
			select {
			case frames <- frame{err: io.EOF}:
			case <-done:
			}
			return
		}
		if err != nil {
			select {
			case frames <- frame{err: err}:
			case <-done:
			}
			return
		}

		var resp dialect.GoogleResponse
		if jsonErr := json.Unmarshal([]byte(event.Data), &resp); jsonErr != nil {
			continue
		}

		select {
		case frames <- frame{resp: &resp}:
		case <-done:
			return
		}
	}
}
