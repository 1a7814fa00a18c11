package translate

import (
	"encoding/json"
	"testing"

	"github.com/lumenbridge/gatewayd/pkg/apierr"
	"github.com/lumenbridge/gatewayd/pkg/dialect"
)

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestRequest_FailsWithoutMessages(t *testing.T) {
	_, err := Request(&dialect.Request{})
	if err == nil {
		t.Fatal("expected translation_error for missing messages")
	}
	ge, ok := apierr.As(err)
	if !ok || ge.Kind != apierr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRequest_FailsWhenEveryMessageLacksRole(t *testing.T) {
	req := &dialect.Request{
		Messages: []dialect.Message{
			{Content: rawJSON(t, "hello")},
		},
	}
	if _, err := Request(req); err == nil {
		t.Fatal("expected translation_error when no message has a role")
	}
}

func TestRequest_MergesConsecutiveSameRoleTurns(t *testing.T) {
	req := &dialect.Request{
		Messages: []dialect.Message{
			{Role: dialect.RoleUser, Content: rawJSON(t, "first")},
			{Role: dialect.RoleUser, Content: rawJSON(t, "second")},
			{Role: dialect.RoleAssistant, Content: rawJSON(t, "reply")},
		},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Contents) != 2 {
		t.Fatalf("expected 2 merged turns, got %d", len(out.Contents))
	}
	if len(out.Contents[0].Parts) != 2 {
		t.Fatalf("expected merged user turn to carry 2 parts, got %d", len(out.Contents[0].Parts))
	}
	if out.Contents[1].Role != "model" {
		t.Errorf("assistant role should map to model, got %q", out.Contents[1].Role)
	}
}

func TestRequest_MapsTextAndImageBlocks(t *testing.T) {
	blocks := []dialect.Block{
		{Type: "text", Text: "describe this"},
		{Type: "image", Source: &dialect.ImageSource{MediaType: "image/png", Data: "YWJj"}},
	}
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, blocks)}},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := out.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Text != "describe this" {
		t.Errorf("text part mismatch: %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/png" {
		t.Errorf("image part mismatch: %+v", parts[1].InlineData)
	}
}

func TestRequest_ToolUseAndToolResultRoundTrip(t *testing.T) {
	assistantBlocks := []dialect.Block{
		{Type: "tool_use", ID: "tool_1", Name: "get_weather", Input: rawJSON(t, map[string]string{"city": "Paris"})},
	}
	userBlocks := []dialect.Block{
		{Type: "tool_result", ToolUseID: "tool_1", Content: rawJSON(t, "sunny")},
	}
	req := &dialect.Request{
		Messages: []dialect.Message{
			{Role: dialect.RoleUser, Content: rawJSON(t, "what's the weather")},
			{Role: dialect.RoleAssistant, Content: rawJSON(t, assistantBlocks)},
			{Role: dialect.RoleUser, Content: rawJSON(t, userBlocks)},
		},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assistantTurn := out.Contents[1]
	if assistantTurn.Parts[0].FunctionCall == nil || assistantTurn.Parts[0].FunctionCall.Name != "get_weather" {
		t.Fatalf("expected function call part, got %+v", assistantTurn.Parts[0])
	}

	resultTurn := out.Contents[2]
	fr := resultTurn.Parts[0].FunctionResponse
	if fr == nil {
		t.Fatal("expected function response part")
	}
	if fr.Name != "get_weather" {
		t.Errorf("expected resolved name get_weather, got %q", fr.Name)
	}
	if fr.Response["result"] != "sunny" {
		t.Errorf("expected result sunny, got %v", fr.Response["result"])
	}
}

func TestRequest_ToolResultFallsBackToRawIDWhenUnresolved(t *testing.T) {
	userBlocks := []dialect.Block{
		{Type: "tool_result", ToolUseID: "unknown_id", Content: rawJSON(t, "value")},
	}
	req := &dialect.Request{
		Messages: []dialect.Message{
			{Role: dialect.RoleUser, Content: rawJSON(t, userBlocks)},
		},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Contents[0].Parts[0].FunctionResponse.Name != "unknown_id" {
		t.Errorf("expected fallback to raw id, got %q", out.Contents[0].Parts[0].FunctionResponse.Name)
	}
}

func TestRequest_ToolResultErrorFlagAugmentsResponse(t *testing.T) {
	userBlocks := []dialect.Block{
		{Type: "tool_result", ToolUseID: "x", Content: rawJSON(t, "boom"), IsError: true},
	}
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, userBlocks)}},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fr := out.Contents[0].Parts[0].FunctionResponse
	if fr.Response["error"] != true {
		t.Errorf("expected error:true, got %v", fr.Response["error"])
	}
	if fr.Response["error_message"] != "boom" {
		t.Errorf("expected error_message boom, got %v", fr.Response["error_message"])
	}
}

func TestRequest_ToolsOmittedWhenFunctionResponsePresent(t *testing.T) {
	userBlocks := []dialect.Block{
		{Type: "tool_result", ToolUseID: "x", Content: rawJSON(t, "ok")},
	}
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, userBlocks)}},
		Tools:    []dialect.Tool{{Name: "f", Description: "d", InputSchema: rawJSON(t, map[string]string{"type": "object"})}},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Tools != nil {
		t.Errorf("expected tools to be omitted when a functionResponse part exists, got %+v", out.Tools)
	}
}

func TestRequest_MaxTokensClamping(t *testing.T) {
	low := 10
	req := &dialect.Request{
		Messages:  []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
		MaxTokens: &low,
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *out.GenerationConfig.MaxOutputTokens != defaultMaxTokens {
		t.Errorf("expected clamp to default %d, got %d", defaultMaxTokens, *out.GenerationConfig.MaxOutputTokens)
	}

	high := 2048
	req.MaxTokens = &high
	out, err = Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *out.GenerationConfig.MaxOutputTokens != high {
		t.Errorf("expected pass-through of %d, got %d", high, *out.GenerationConfig.MaxOutputTokens)
	}
}

func TestRequest_SystemStringJoined(t *testing.T) {
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
		System:   rawJSON(t, "be helpful"),
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SystemInstruction == nil || out.SystemInstruction.Parts[0].Text != "be helpful" {
		t.Fatalf("expected system instruction, got %+v", out.SystemInstruction)
	}
}

func TestRequest_SystemBlocksJoinedWithDoubleNewline(t *testing.T) {
	sysBlocks := []dialect.Block{
		{Type: "text", Text: "part one"},
		{Type: "text", Text: "part two"},
	}
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
		System:   rawJSON(t, sysBlocks),
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SystemInstruction.Parts[0].Text != "part one\n\npart two" {
		t.Errorf("unexpected system join: %q", out.SystemInstruction.Parts[0].Text)
	}
}

func TestRequest_ToolChoiceMapping(t *testing.T) {
	req := &dialect.Request{
		Messages:   []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
		Tools:      []dialect.Tool{{Name: "f", Description: "d", InputSchema: rawJSON(t, map[string]string{"type": "object"})}},
		ToolChoice: &dialect.ToolChoice{Type: dialect.ToolChoiceTool, Name: "f"},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := out.ToolConfig.FunctionCallingConfig
	if cfg.Mode != "ANY" {
		t.Errorf("expected tool choice 'tool' to map to mode ANY, got %q", cfg.Mode)
	}
	if len(cfg.AllowedFunctionNames) != 1 || cfg.AllowedFunctionNames[0] != "f" {
		t.Errorf("expected allowed function names [f], got %v", cfg.AllowedFunctionNames)
	}
}

func TestRequest_ResponseFormatSanitisesSchema(t *testing.T) {
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
		ResponseFormat: &dialect.ResponseFormat{
			Type:   "json_schema",
			Schema: rawJSON(t, map[string]interface{}{"type": "object", "$schema": "draft-07"}),
		},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("expected application/json mime type, got %q", out.GenerationConfig.ResponseMimeType)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(out.GenerationConfig.ResponseJSONSchema, &schema); err != nil {
		t.Fatalf("unmarshal sanitised schema: %v", err)
	}
	if _, present := schema["$schema"]; present {
		t.Error("expected $schema to be stripped by sanitizer")
	}
}

func TestRequest_ToolParametersAreSanitised(t *testing.T) {
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
		Tools: []dialect.Tool{{
			Name:        "f",
			Description: "d",
			InputSchema: rawJSON(t, map[string]interface{}{"type": "object", "additionalProperties": false}),
		}},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(out.Tools[0].FunctionDeclarations[0].Parameters, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if _, present := params["additionalProperties"]; present {
		t.Error("expected additionalProperties to be stripped from tool parameters")
	}
}

func TestRequest_AttachesPermissiveSafetyVector(t *testing.T) {
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
	}
	out, err := Request(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.SafetySettings) != len(dialect.SafetyCategories) {
		t.Fatalf("expected %d safety settings, got %d", len(dialect.SafetyCategories), len(out.SafetySettings))
	}
	for _, s := range out.SafetySettings {
		if s.Threshold != "BLOCK_NONE" {
			t.Errorf("expected permissive threshold, got %q", s.Threshold)
		}
	}
}

func TestRequest_DoesNotMutateInput(t *testing.T) {
	req := &dialect.Request{
		Messages: []dialect.Message{{Role: dialect.RoleUser, Content: rawJSON(t, "hi")}},
	}
	original := *req
	if _, err := Request(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Messages) != len(original.Messages) {
		t.Error("Request must not mutate its input")
	}
}
