// Package translate implements Components B, C, and D of the gateway: the
// request translator (Dialect A to Dialect G), the synchronous response
// translator (Dialect G to Dialect A), and the streaming translator. It
// leans on pkg/dialect for the wire shapes and pkg/sanitizer for schema
// cleaning, the way the teacher SDK's provider packages each own a single
// request/response mapping concern.
package translate

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/lumenbridge/gatewayd/pkg/apierr"
	"github.com/lumenbridge/gatewayd/pkg/dialect"
	"github.com/lumenbridge/gatewayd/pkg/sanitizer"
)

const (
	minMaxTokens     = 100
	defaultMaxTokens = 4096
)

// alnum is the alphabet random IDs are drawn from.
const alnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomAlnum(n int) string {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alnum))))
		if err != nil {
			// crypto/rand failure is not recoverable in-process; fall back
			// to a fixed character rather than panic mid-request.
			out[i] = alnum[0]
			continue
		}
		out[i] = alnum[idx.Int64()]
	}
	return string(out)
}

// Request translates a Dialect A request into a Dialect G request. It never
// mutates req.
func Request(req *dialect.Request) (*dialect.GoogleRequest, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, apierr.New(apierr.KindValidation, "translation_error: messages is required", nil)
	}

	anyRole := false
	for _, m := range req.Messages {
		if m.Role != "" {
			anyRole = true
			break
		}
	}
	if !anyRole {
		return nil, apierr.New(apierr.KindValidation, "translation_error: every message lacks a role", nil)
	}

	contents, err := translateMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	out := &dialect.GoogleRequest{
		Contents:       contents,
		GenerationConfig: buildGenerationConfig(req),
		SafetySettings: dialect.PermissiveSafetySettings(),
	}

	if sysInstr := buildSystemInstruction(req.System); sysInstr != nil {
		out.SystemInstruction = sysInstr
	}

	hasFunctionResponse := false
	for _, c := range contents {
		for _, p := range c.Parts {
			if p.FunctionResponse != nil {
				hasFunctionResponse = true
			}
		}
	}

	if !hasFunctionResponse && len(req.Tools) > 0 {
		decls := make([]dialect.GoogleFunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, dialect.GoogleFunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  sanitizeSchema(tool.InputSchema),
			})
		}
		out.Tools = []dialect.GoogleToolEntry{{FunctionDeclarations: decls}}

		if req.ToolChoice != nil {
			out.ToolConfig = &dialect.GoogleToolConfig{
				FunctionCallingConfig: buildFunctionCallingConfig(req.ToolChoice),
			}
		}
	}

	return out, nil
}

func sanitizeSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	cleaned, err := json.Marshal(sanitizer.Sanitize(v))
	if err != nil {
		return raw
	}
	return cleaned
}

func buildFunctionCallingConfig(choice *dialect.ToolChoice) dialect.GoogleFunctionCallingConfig {
	switch choice.Type {
	case dialect.ToolChoiceAny, dialect.ToolChoiceTool:
		cfg := dialect.GoogleFunctionCallingConfig{Mode: "ANY"}
		if choice.Type == dialect.ToolChoiceTool && choice.Name != "" {
			cfg.AllowedFunctionNames = []string{choice.Name}
		}
		return cfg
	case dialect.ToolChoiceNone:
		return dialect.GoogleFunctionCallingConfig{Mode: "NONE"}
	default:
		return dialect.GoogleFunctionCallingConfig{Mode: "AUTO"}
	}
}

func buildGenerationConfig(req *dialect.Request) *dialect.GenerationConfig {
	cfg := &dialect.GenerationConfig{
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens >= minMaxTokens {
		maxTokens = *req.MaxTokens
	}
	cfg.MaxOutputTokens = &maxTokens

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "json_object", "json_schema":
			cfg.ResponseMimeType = "application/json"
			if len(req.ResponseFormat.Schema) > 0 {
				cfg.ResponseJSONSchema = sanitizeSchema(req.ResponseFormat.Schema)
			}
		}
	}

	return cfg
}

func buildSystemInstruction(system json.RawMessage) *dialect.GoogleContent {
	if len(system) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(system, &asString); err == nil {
		if strings.TrimSpace(asString) == "" {
			return nil
		}
		return &dialect.GoogleContent{Parts: []dialect.GooglePart{{Text: asString}}}
	}

	var blocks []dialect.Block
	if err := json.Unmarshal(system, &blocks); err != nil {
		return nil
	}
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	return &dialect.GoogleContent{Parts: []dialect.GooglePart{{Text: strings.Join(texts, "\n\n")}}}
}

// translateMessages walks the Dialect A turns, merging consecutive
// same-role turns and resolving tool_result names by walking backward for
// the matching tool_use id.
func translateMessages(messages []dialect.Message) ([]dialect.GoogleContent, error) {
	var contents []dialect.GoogleContent

	for i, msg := range messages {
		role := googleRole(msg.Role)
		parts, err := translateContent(msg.Content, messages, i)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			continue
		}

		if len(contents) > 0 && contents[len(contents)-1].Role == role {
			contents[len(contents)-1].Parts = append(contents[len(contents)-1].Parts, parts...)
			continue
		}
		contents = append(contents, dialect.GoogleContent{Role: role, Parts: parts})
	}

	return contents, nil
}

func googleRole(role dialect.Role) string {
	if role == dialect.RoleAssistant {
		return "model"
	}
	return "user"
}

func translateContent(raw json.RawMessage, all []dialect.Message, index int) ([]dialect.GooglePart, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []dialect.GooglePart{{Text: asString}}, nil
	}

	var blocks []dialect.Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, apierr.New(apierr.KindValidation, "translation_error: unrecognised message content shape", err)
	}

	var parts []dialect.GooglePart
	for _, block := range blocks {
		switch block.Type {
		case "text":
			parts = append(parts, dialect.GooglePart{Text: block.Text})
		case "image":
			if block.Source != nil {
				parts = append(parts, dialect.GooglePart{InlineData: &dialect.GoogleInlineData{
					MimeType: block.Source.MediaType,
					Data:     block.Source.Data,
				}})
			}
		case "tool_use":
			var args map[string]interface{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			parts = append(parts, dialect.GooglePart{FunctionCall: &dialect.GoogleFuncCall{
				Name: block.Name,
				Args: args,
			}})
		case "tool_result":
			name := resolveToolName(all, index, block.ToolUseID)
			parts = append(parts, dialect.GooglePart{FunctionResponse: &dialect.GoogleFuncResp{
				Name:     name,
				Response: buildToolResponse(block),
			}})
		}
	}
	return parts, nil
}

// resolveToolName walks backward from index for the most recent tool_use
// block whose id equals toolUseID. If none is found, the raw id is used.
func resolveToolName(messages []dialect.Message, index int, toolUseID string) string {
	for i := index - 1; i >= 0; i-- {
		var blocks []dialect.Block
		if err := json.Unmarshal(messages[i].Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Type == "tool_use" && b.ID == toolUseID {
				return b.Name
			}
		}
	}
	fmt.Printf("CRITICAL: no tool_use found for tool_result id %q, using raw id as function name\n", toolUseID)
	return toolUseID
}

func buildToolResponse(block dialect.Block) map[string]interface{} {
	result := coerceToolResultContent(block.Content)
	resp := map[string]interface{}{"result": result}
	if block.IsError {
		resp["error"] = true
		if s, ok := result.(string); ok {
			resp["error_message"] = s
		} else {
			if b, err := json.Marshal(result); err == nil {
				resp["error_message"] = string(b)
			}
		}
	}
	return resp
}

func coerceToolResultContent(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asArray []interface{}
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject
	}

	var asOther interface{}
	if err := json.Unmarshal(raw, &asOther); err == nil {
		return fmt.Sprintf("%v", asOther)
	}
	return string(raw)
}
