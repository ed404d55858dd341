package types

// GenerateResponseLine is one NDJSON line streamed by POST /v1/generate.
// Token lines carry Token; the final line carries Done plus the finish reason.
type GenerateResponseLine struct {
	// A single generated token (absent on the final line).
	// example: "hello"
	Token string `json:"token,omitempty"`
	// True on the terminal line only.
	// example: true
	Done bool `json:"done,omitempty"`
	// Full generated content, present on the terminal line.
	Content string `json:"content,omitempty"`
	// Why generation stopped; present on the terminal line.
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
	// Number of tokens generated.
	// example: 128
	TokenCount int `json:"token_count,omitempty"`
	// Session the generation ran against; present on the terminal line.
	// example: 7b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d
	SessionID string `json:"session_id,omitempty"`
}

// PlanRequest asks the dependency analyzer to classify one turn's tool calls.
type PlanRequest struct {
	// Tool calls emitted by the model in a single turn.
	Calls []ToolCall `json:"calls"`
}

// PlanResponse is the analyzer's decision for a turn.
type PlanResponse struct {
	// Execution mode: "parallel" or "sequential".
	// example: sequential
	Mode string `json:"mode" example:"sequential"`
	// Human-readable reason when sequential.
	// example: single tool call
	Reason string `json:"reason,omitempty" example:"single tool call"`
}

// SessionInfo summarizes one conversation session for /v1/sessions.
type SessionInfo struct {
	// Session identifier.
	// example: 7b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d
	ID string `json:"id"`
	// Number of messages in the session history.
	// example: 4
	Messages int `json:"messages"`
	// Creation time (unix seconds).
	// example: 1700000000
	CreatedAt int64 `json:"created_at_unix"`
	// Last activity time (unix seconds).
	// example: 1700000100
	LastUsed int64 `json:"last_used_unix"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ModelStatus describes the loaded model for /status.
type ModelStatus struct {
	// Source repo or folder the model was loaded from.
	// example: org/tinyllama
	Source string `json:"source"`
	// Weights filename.
	// example: tinyllama-q4.gguf
	Filename string `json:"filename"`
	// Model size in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes"`
	// Load duration in milliseconds.
	// example: 1834
	LoadTimeMS int64 `json:"load_time_ms"`
	// Whether the load was served from the local cache.
	// example: true
	CacheHit bool `json:"cache_hit"`
	// Context window size in tokens.
	// example: 4096
	ContextSize int `json:"context_size"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall engine state (loading, ready, error).
	// example: ready
	State string `json:"state"`
	// Loaded model metadata, when ready.
	Model *ModelStatus `json:"model,omitempty"`
	// Sessions currently mid-generation.
	// example: 2
	ActiveSlots int `json:"active_slots"`
	// Maximum concurrent sessions (n_seq_max).
	// example: 4
	MaxSlots int `json:"max_slots"`
	// Requests waiting for a slot.
	// example: 1
	QueueLen int `json:"queue_len"`
	// Queue capacity before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth"`
	// Tracked sessions (active plus idle).
	// example: 7
	Sessions int `json:"sessions"`
	// Last error observed by the engine (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total generations completed.
	// example: 12
	GenerationsTotal uint64 `json:"generations_total"`
}
