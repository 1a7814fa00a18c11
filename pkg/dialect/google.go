package dialect

import "encoding/json"

// GoogleRequest is the outbound Dialect G request body.
type GoogleRequest struct {
	Contents          []GoogleContent    `json:"contents"`
	SystemInstruction *GoogleContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	Tools             []GoogleToolEntry  `json:"tools,omitempty"`
	ToolConfig        *GoogleToolConfig  `json:"toolConfig,omitempty"`
	SafetySettings    []GoogleSafety     `json:"safetySettings,omitempty"`
}

// GoogleContent is one turn of the Dialect G conversation.
type GoogleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GooglePart `json:"parts"`
}

// GooglePart is one element of a Dialect G turn's parts array. Only one of
// the fields is set on any given part.
type GooglePart struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *GoogleInlineData `json:"inlineData,omitempty"`
	FunctionCall     *GoogleFuncCall   `json:"functionCall,omitempty"`
	FunctionResponse *GoogleFuncResp   `json:"functionResponse,omitempty"`
}

// GoogleInlineData carries an inline image/blob.
type GoogleInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GoogleFuncCall is the model's request to invoke a tool.
type GoogleFuncCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// GoogleFuncResp carries the result of a tool invocation back to the model.
type GoogleFuncResp struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// GenerationConfig holds sampling and output-shape parameters.
type GenerationConfig struct {
	Temperature        *float64        `json:"temperature,omitempty"`
	TopP               *float64        `json:"topP,omitempty"`
	TopK               *int            `json:"topK,omitempty"`
	MaxOutputTokens    *int            `json:"maxOutputTokens,omitempty"`
	StopSequences      []string        `json:"stopSequences,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage `json:"responseJsonSchema,omitempty"`
}

// GoogleToolEntry wraps the function declarations the model may call.
// The upstream's documented field spelling is camelCase, resolved in
// SPEC_FULL.md's Open Questions section.
type GoogleToolEntry struct {
	FunctionDeclarations []GoogleFunctionDeclaration `json:"functionDeclarations"`
}

// GoogleFunctionDeclaration describes one callable tool.
type GoogleFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// GoogleToolConfig controls how the model selects among declared tools.
type GoogleToolConfig struct {
	FunctionCallingConfig GoogleFunctionCallingConfig `json:"functionCallingConfig"`
}

// GoogleFunctionCallingConfig is the mode a tool_choice translates to.
type GoogleFunctionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// GoogleSafety is one entry of the fixed permissive safety vector.
type GoogleSafety struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GoogleResponse is the synchronous (and per-chunk streaming) Dialect G
// reply shape.
type GoogleResponse struct {
	Candidates    []GoogleCandidate    `json:"candidates"`
	UsageMetadata *GoogleUsageMetadata `json:"usageMetadata,omitempty"`
}

// GoogleCandidate is one generated completion.
type GoogleCandidate struct {
	Content      GoogleContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

// GoogleUsageMetadata reports token accounting.
type GoogleUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// SafetyCategories enumerates the categories the fixed permissive safety
// vector covers; Threshold is always the least-restrictive value.
var SafetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

const safetyThresholdBlockNone = "BLOCK_NONE"

// PermissiveSafetySettings returns the fixed safety vector attached to
// every outbound request.
func PermissiveSafetySettings() []GoogleSafety {
	settings := make([]GoogleSafety, 0, len(SafetyCategories))
	for _, category := range SafetyCategories {
		settings = append(settings, GoogleSafety{Category: category, Threshold: safetyThresholdBlockNone})
	}
	return settings
}
