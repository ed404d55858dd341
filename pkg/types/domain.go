package types

import "encoding/json"

// SourceKind distinguishes where model bytes come from.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// ModelSource identifies a model location. Immutable once constructed;
// validated by the model manager before any load is attempted.
type ModelSource struct {
	Kind SourceKind `json:"kind" yaml:"kind" toml:"kind"`
	// Remote repository identifier, e.g. "org/model-name".
	Repo string `json:"repo,omitempty" yaml:"repo,omitempty" toml:"repo,omitempty"`
	// Weights filename inside the repo or folder; must end in .gguf.
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty" toml:"filename,omitempty"`
	// Folder: optional sub-folder for remote sources, required root for local ones.
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty" toml:"folder,omitempty"`
}

// RemoteSource builds a remote model source.
func RemoteSource(repo, filename, folder string) ModelSource {
	return ModelSource{Kind: SourceRemote, Repo: repo, Filename: filename, Folder: folder}
}

// LocalSource builds a local-folder model source.
func LocalSource(folder, filename string) ModelSource {
	return ModelSource{Kind: SourceLocal, Folder: folder, Filename: filename}
}

// FinishKind tags why a generation stopped.
type FinishKind string

const (
	// FinishLength: the token limit was reached exactly.
	FinishLength FinishKind = "length"
	// FinishLengthExceeded: the cumulative count overshot the limit mid-batch.
	FinishLengthExceeded FinishKind = "length_exceeded"
	// FinishZeroLimit: a zero token limit fires on the first non-empty batch.
	FinishZeroLimit FinishKind = "zero_limit"
	// FinishStop: a configured stop sequence was produced.
	FinishStop FinishKind = "stop"
	// FinishOverflowAbort: safety abort when a token counter would wrap around.
	FinishOverflowAbort FinishKind = "overflow_abort"
	// FinishCanceled: the caller abandoned the request mid-generation.
	FinishCanceled FinishKind = "canceled"
)

// FinishReason is the terminal outcome of one generation. Produced once.
type FinishReason struct {
	Kind    FinishKind `json:"kind"`
	Message string     `json:"message"`
}

// GenerationRequest is one decode invocation against a session.
type GenerationRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt"`
	// MaxTokens caps generated tokens when present. nil means no limit was
	// supplied; an explicit 0 stops at the first batch.
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
}

// Int returns a pointer to n, for optional request fields.
func Int(n int) *int { return &n }

// GenerationResult is the terminal outcome of one generation request.
type GenerationResult struct {
	SessionID  string       `json:"session_id"`
	Content    string       `json:"content"`
	TokenCount int          `json:"token_count"`
	Reason     FinishReason `json:"finish_reason"`
}

// ToolCall is a structured request emitted by the model to invoke an external
// capability. Consumed by the dependency analyzer and the tool executor.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ResourceKind classifies the resource a tool call touches.
type ResourceKind string

const (
	ResourceFile       ResourceKind = "file"
	ResourceFileSystem ResourceKind = "filesystem"
	ResourceNetwork    ResourceKind = "network"
	ResourceDatabase   ResourceKind = "database"
	ResourceMemory     ResourceKind = "memory"
	ResourceSystem     ResourceKind = "system"
	ResourceOther      ResourceKind = "other"
)

// AccessKind is how a resource is accessed.
type AccessKind string

const (
	AccessRead      AccessKind = "read"
	AccessWrite     AccessKind = "write"
	AccessReadWrite AccessKind = "read_write"
	AccessDelete    AccessKind = "delete"
)

// Mutating reports whether the access can change the resource.
func (a AccessKind) Mutating() bool {
	return a == AccessWrite || a == AccessReadWrite || a == AccessDelete
}

// Resource is an identified resource (a path, URL, table name, ...).
type Resource struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

// ResourceAccess pairs a resource with how a tool call touches it.
type ResourceAccess struct {
	Resource  Resource   `json:"resource"`
	Access    AccessKind `json:"access"`
	Exclusive bool       `json:"exclusive,omitempty"`
}

// ToolConflict is an operator-declared conflict between two tool names.
type ToolConflict struct {
	Tool1       string `json:"tool1" yaml:"tool1" toml:"tool1"`
	Tool2       string `json:"tool2" yaml:"tool2" toml:"tool2"`
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// ToolPair names two tools that must never run together.
type ToolPair struct {
	Tool1 string `json:"tool1" yaml:"tool1" toml:"tool1"`
	Tool2 string `json:"tool2" yaml:"tool2" toml:"tool2"`
}

// ParallelConfig is operator policy consumed read-only by the dependency
// analyzer.
type ParallelConfig struct {
	ToolConflicts []ToolConflict `json:"tool_conflicts,omitempty" yaml:"tool_conflicts,omitempty" toml:"tool_conflicts,omitempty"`
	NeverParallel []ToolPair     `json:"never_parallel,omitempty" yaml:"never_parallel,omitempty" toml:"never_parallel,omitempty"`
	// Per-tool-name override table; wins over heuristic inference.
	ResourceAccessPatterns map[string][]ResourceAccess `json:"resource_access_patterns,omitempty" yaml:"resource_access_patterns,omitempty" toml:"resource_access_patterns,omitempty"`
}
