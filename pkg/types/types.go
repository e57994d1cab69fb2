package types

import "fmt"

// DefaultDeviceName is used when the model does not name the device.
const DefaultDeviceName = "Device"

// DefaultActionType is used when a step carries no action kind.
const DefaultActionType = "tap"

// InstructionResult is the parsed output of one model invocation.
type InstructionResult struct {
	DeviceName string  `json:"device_name"`
	RiskAlert  *string `json:"risk_alert"`
	Steps      []Step  `json:"steps"`
}

// HasRisk reports whether an immediate hazard was flagged.
func (r *InstructionResult) HasRisk() bool {
	return r != nil && r.RiskAlert != nil && *r.RiskAlert != ""
}

// Step is one interaction step in execution order.
type Step struct {
	Order      int    `json:"order"`
	Text       string `json:"text"`
	ActionType string `json:"action_type"`
	Box        *Box   `json:"box_2d"`
}

// Line renders the step for the textual step list.
func (s Step) Line() string {
	return fmt.Sprintf("Step %d: %s", s.Order, s.Text)
}

// Box is a location in the 0-1000 normalized space, stored as
// [ymin, xmin, ymax, xmax] to match the model contract.
type Box [4]int

func (b Box) YMin() int { return b[0] }
func (b Box) XMin() int { return b[1] }
func (b Box) YMax() int { return b[2] }
func (b Box) XMax() int { return b[3] }

// Language is one entry of the closed set of target languages.
type Language struct {
	Name       string `json:"name"`
	SpeechCode string `json:"code"`
}

type LanguageListResp struct {
	Languages []Language `json:"languages"`
}

type AnalyzeReq struct {
	ImageBase64 string `json:"image_base64"`
	Goal        string `json:"goal"`
	Language    string `json:"language"`
}

// AnalysisResp is what the presenter shows for one run.
type AnalysisResp struct {
	ID          string             `json:"id"`
	CreatedAt   int64              `json:"created_at"`
	Language    Language           `json:"language"`
	Goal        string             `json:"goal"`
	Result      *InstructionResult `json:"result"`
	StepLines   []string           `json:"step_lines"`
	Narration   string             `json:"narration"`
	ImageURL    string             `json:"image_url"`
	ImageType   string             `json:"image_type"`
	ImageBase64 string             `json:"image_base64,omitempty"`
	AudioURL    string             `json:"audio_url,omitempty"`
	AudioType   string             `json:"audio_type,omitempty"`
	AudioBase64 string             `json:"audio_base64,omitempty"`
	DurationMs  int64              `json:"duration_ms,omitempty"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
}

type TTSReq struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type HealthResp struct {
	Status      string `json:"status"`
	Backend     string `json:"backend"`
	LiveStreams int    `json:"live_streams"`
}

// StreamMsg is the envelope for live scanner messages in both directions.
type StreamMsg struct {
	Type     string `json:"type"`
	Goal     string `json:"goal,omitempty"`
	Language string `json:"language,omitempty"`
	Image    string `json:"image,omitempty"`
	Error    string `json:"error,omitempty"`
	TS       int64  `json:"ts,omitempty"`
}
