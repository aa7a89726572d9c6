package schemas

import (
	"fmt"
	"time"
)

// ActionKind is the closed set of action variants the planner may emit. Each
// kind is handled by exactly one registered executor; routing is a pure lookup
// on this tag.
type ActionKind string

const (
	KindGUI     ActionKind = "GUI"     // Pointer/keyboard injection against the live desktop.
	KindBrowser ActionKind = "BROWSER" // Driven browser session (navigate, click, extract).
	KindCode    ActionKind = "CODE"    // Code generation and sandboxed execution.
	KindFile    ActionKind = "FILE"    // File operations under the sandbox root.
	KindSystem  ActionKind = "SYSTEM"  // Shell commands, application launch, process queries.
)

// AllActionKinds lists every routable kind. Used for request validation and
// for building the planner's action vocabulary.
func AllActionKinds() []ActionKind {
	return []ActionKind{KindGUI, KindBrowser, KindCode, KindFile, KindSystem}
}

// GUIOp enumerates the operations of a GUIAction.
type GUIOp string

const (
	GUIMove           GUIOp = "MOVE"            // Move the pointer to X/Y.
	GUIClick          GUIOp = "CLICK"           // Click at X/Y (or current position).
	GUIDoubleClick    GUIOp = "DOUBLE_CLICK"    // Double-click at X/Y.
	GUIType           GUIOp = "TYPE"            // Type literal text.
	GUIPress          GUIOp = "PRESS"           // Press a key or key chord (e.g. "ctrl+s").
	GUIScroll         GUIOp = "SCROLL"          // Scroll vertically by Amount.
	GUIActivateWindow GUIOp = "ACTIVATE_WINDOW" // Find a window by title and focus it.
	GUIWaitForText    GUIOp = "WAIT_FOR_TEXT"   // Poll observations until Text appears on screen.
)

// GUIParams carries the parameters of a GUI action.
type GUIParams struct {
	Op     GUIOp  `json:"op"`               // The GUI operation to perform.
	X      int    `json:"x,omitempty"`      // Pointer X coordinate in screen pixels.
	Y      int    `json:"y,omitempty"`      // Pointer Y coordinate in screen pixels.
	Text   string `json:"text,omitempty"`   // Text to type, key chord to press, or text to wait for.
	Window string `json:"window,omitempty"` // Window title substring for ACTIVATE_WINDOW.
	Amount int    `json:"amount,omitempty"` // Scroll amount; negative scrolls up.
}

// BrowserOp enumerates the operations of a BrowserAction.
type BrowserOp string

const (
	BrowserNavigate   BrowserOp = "NAVIGATE"    // Load URL.
	BrowserClick      BrowserOp = "CLICK"       // Click the element matching Selector.
	BrowserType       BrowserOp = "TYPE"        // Type Text into the element matching Selector.
	BrowserExtract    BrowserOp = "EXTRACT"     // Extract the visible text of the current page.
	BrowserScreenshot BrowserOp = "SCREENSHOT"  // Capture the viewport to a file.
	BrowserVerify     BrowserOp = "VERIFY_TEXT" // Check that the page contains Text.
)

// BrowserParams carries the parameters of a browser action.
type BrowserParams struct {
	Op       BrowserOp `json:"op"`                 // The browser operation to perform.
	URL      string    `json:"url,omitempty"`      // Target URL for NAVIGATE.
	Selector string    `json:"selector,omitempty"` // CSS selector for CLICK and TYPE.
	Text     string    `json:"text,omitempty"`     // Text to type or to verify.
}

// CodeOp enumerates the operations of a CodeAction.
type CodeOp string

const (
	CodeGenerate CodeOp = "GENERATE" // Generate a script for the described task.
	CodeExecute  CodeOp = "EXECUTE"  // Execute the provided (or last generated) script.
	CodeAnalyze  CodeOp = "ANALYZE"  // Syntax-check a script without running it.
	CodeRun      CodeOp = "RUN"      // Generate then immediately execute.
)

// CodeParams carries the parameters of a code action.
type CodeParams struct {
	Op          CodeOp `json:"op"`                    // The code operation to perform.
	Description string `json:"description,omitempty"` // Natural-language description of what to generate.
	Language    string `json:"language,omitempty"`    // Script language ("python", "javascript", "shell").
	Source      string `json:"source,omitempty"`      // Script body for EXECUTE and ANALYZE.
}

// FileOp enumerates the operations of a FileAction.
type FileOp string

const (
	FileCreate FileOp = "CREATE" // Create Path with Content; fails if it already exists.
	FileRead   FileOp = "READ"   // Read Path.
	FileUpdate FileOp = "UPDATE" // Overwrite an existing Path with Content.
	FileDelete FileOp = "DELETE" // Remove Path.
	FileList   FileOp = "LIST"   // List the directory at Path.
	FileSearch FileOp = "SEARCH" // Search files under Path for Query.
)

// FileParams carries the parameters of a file action. Paths are always
// interpreted relative to the configured sandbox root.
type FileParams struct {
	Op      FileOp `json:"op"`                // The file operation to perform.
	Path    string `json:"path,omitempty"`    // Target path, relative to the sandbox root.
	Content string `json:"content,omitempty"` // Content for CREATE and UPDATE.
	Query   string `json:"query,omitempty"`   // Substring to search for with SEARCH.
}

// SystemOp enumerates the operations of a SystemAction.
type SystemOp string

const (
	SystemCommand   SystemOp = "COMMAND"    // Run a shell command (subject to the safety policy).
	SystemLaunch    SystemOp = "LAUNCH_APP" // Launch an application by name.
	SystemInfo      SystemOp = "INFO"       // Report OS, hostname and uptime.
	SystemProcesses SystemOp = "PROCESSES"  // List running processes.
)

// SystemParams carries the parameters of a system action.
type SystemParams struct {
	Op      SystemOp `json:"op"`                // The system operation to perform.
	Command string   `json:"command,omitempty"` // Command line for COMMAND.
	App     string   `json:"app,omitempty"`     // Application name for LAUNCH_APP.
}

// Action is one concrete step decided by the planner. It is a tagged variant:
// Kind selects which of the parameter blocks is populated, and exactly one
// block must be set. Actions are immutable once issued.
type Action struct {
	ID     string     `json:"id"`      // Unique identifier for this action instance.
	TaskID string     `json:"task_id"` // The task this action belongs to.
	Kind   ActionKind `json:"kind"`    // The variant tag; selects the executor.

	// Thought carries the planner's reasoning for this decision. Kept for
	// history and diagnostics, never interpreted by the engine.
	Thought string `json:"thought,omitempty"`

	GUI     *GUIParams     `json:"gui,omitempty"`     // Set when Kind == KindGUI.
	Browser *BrowserParams `json:"browser,omitempty"` // Set when Kind == KindBrowser.
	Code    *CodeParams    `json:"code,omitempty"`    // Set when Kind == KindCode.
	File    *FileParams    `json:"file,omitempty"`    // Set when Kind == KindFile.
	System  *SystemParams  `json:"system,omitempty"`  // Set when Kind == KindSystem.

	IssuedAt time.Time `json:"issued_at"` // The time the planner issued the action.
}

// Validate checks the variant invariant: Kind is a known tag and exactly the
// matching parameter block is present.
func (a *Action) Validate() error {
	var set int
	for _, p := range []bool{a.GUI != nil, a.Browser != nil, a.Code != nil, a.File != nil, a.System != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("action %s: expected exactly one parameter block, got %d", a.ID, set)
	}
	switch a.Kind {
	case KindGUI:
		if a.GUI == nil {
			return fmt.Errorf("action %s: kind %s without gui params", a.ID, a.Kind)
		}
	case KindBrowser:
		if a.Browser == nil {
			return fmt.Errorf("action %s: kind %s without browser params", a.ID, a.Kind)
		}
	case KindCode:
		if a.Code == nil {
			return fmt.Errorf("action %s: kind %s without code params", a.ID, a.Kind)
		}
	case KindFile:
		if a.File == nil {
			return fmt.Errorf("action %s: kind %s without file params", a.ID, a.Kind)
		}
	case KindSystem:
		if a.System == nil {
			return fmt.Errorf("action %s: kind %s without system params", a.ID, a.Kind)
		}
	default:
		return fmt.Errorf("action %s: unknown kind %q", a.ID, a.Kind)
	}
	return nil
}

// Describe returns a short human-readable label for logs and the event feed,
// e.g. "GUI/CLICK" or "BROWSER/NAVIGATE".
func (a *Action) Describe() string {
	switch a.Kind {
	case KindGUI:
		if a.GUI != nil {
			return fmt.Sprintf("%s/%s", a.Kind, a.GUI.Op)
		}
	case KindBrowser:
		if a.Browser != nil {
			return fmt.Sprintf("%s/%s", a.Kind, a.Browser.Op)
		}
	case KindCode:
		if a.Code != nil {
			return fmt.Sprintf("%s/%s", a.Kind, a.Code.Op)
		}
	case KindFile:
		if a.File != nil {
			return fmt.Sprintf("%s/%s", a.Kind, a.File.Op)
		}
	case KindSystem:
		if a.System != nil {
			return fmt.Sprintf("%s/%s", a.Kind, a.System.Op)
		}
	}
	return string(a.Kind)
}

// ResultStatus is the outcome classification of one action execution.
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "SUCCESS"   // The executor completed the action.
	ResultFailed   ResultStatus = "FAILED"    // The executor could not complete the action.
	ResultTimedOut ResultStatus = "TIMED_OUT" // The action exceeded its execution timeout.
)

// -- Executor error codes --
// Stable machine-readable codes attached to failed results so the planner can
// reason about what went wrong without parsing prose.
const (
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND" // A selector or screen target did not resolve.
	ErrCodeTimeout         = "TIMEOUT_ERROR"     // The operation exceeded its deadline.
	ErrCodeNavigation      = "NAVIGATION_ERROR"  // A page load or URL resolution failed.
	ErrCodeExecution       = "EXECUTION_ERROR"   // A subprocess or script exited abnormally.
	ErrCodeSyntax          = "SYNTAX_ERROR"      // Generated code failed syntax analysis.
	ErrCodeBlockedCommand  = "BLOCKED_COMMAND"   // The safety policy refused a command.
	ErrCodePathEscape      = "PATH_ESCAPE"       // A file path resolved outside the sandbox root.
	ErrCodeNotFound        = "NOT_FOUND"         // A file, window or process was not found.
	ErrCodeUnsupported     = "UNSUPPORTED_OP"    // The executor does not implement the requested op.
	ErrCodeInternal        = "INTERNAL_ERROR"    // Unclassified executor failure.
)

// ActionResult is the typed outcome of executing one Action.
type ActionResult struct {
	Status    ResultStatus           `json:"status"`                 // SUCCESS, FAILED or TIMED_OUT.
	Output    string                 `json:"output,omitempty"`       // Primary textual output (page text, stdout, file content).
	Data      map[string]interface{} `json:"data,omitempty"`         // Structured kind-specific payload.
	ErrCode   string                 `json:"error_code,omitempty"`   // Stable code from the set above; empty on success.
	ErrDetail string                 `json:"error_detail,omitempty"` // Human-readable failure detail.

	// NonIdempotent marks results of actions that must not be blindly retried
	// (the work may have partially happened). The orchestrator skips automatic
	// retry for these and escalates straight to the planner.
	NonIdempotent bool `json:"non_idempotent,omitempty"`

	Duration time.Duration `json:"duration_ns"` // Wall time spent inside the executor.
}

// OK reports whether the result is a success.
func (r *ActionResult) OK() bool { return r.Status == ResultSuccess }

// FailureResult builds a failed ActionResult with the given code and detail.
func FailureResult(code, detail string) *ActionResult {
	return &ActionResult{Status: ResultFailed, ErrCode: code, ErrDetail: detail}
}

// TimeoutResult builds a timed-out ActionResult.
func TimeoutResult(detail string) *ActionResult {
	return &ActionResult{Status: ResultTimedOut, ErrCode: ErrCodeTimeout, ErrDetail: detail}
}
