package planner

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

const baseSystemPrompt = `You are the planning mind of 'deskpilot', an autonomous desktop agent.
You operate a computer to achieve the user's goal: you see the screen as extracted text, you decide one action at a time, and you observe the result before deciding again.
Respond with a SINGLE JSON object and nothing else. The object has this shape:
  {"decision": "NEXT_ACTION" | "COMPLETE" | "UNRECOVERABLE", "thought": "<your reasoning>", ...}
- decision NEXT_ACTION requires an "action" object (vocabulary below).
- decision COMPLETE requires a "summary" string describing the achieved outcome.
- decision UNRECOVERABLE requires a "reason" string explaining why the goal cannot be achieved.
Rules:
- Issue exactly one action per response. Never invent action kinds or operations outside the vocabulary.
- Failed steps appear in the history with their error codes. Do not repeat an action that keeps failing; choose a different approach or declare UNRECOVERABLE.
- Prefer the cheapest action that makes progress. Declare COMPLETE as soon as the screen shows the goal is achieved.`

// kindVocabulary describes every action kind's JSON shape for the model. Only
// kinds present in the allowed set are included.
var kindVocabulary = map[schemas.ActionKind]string{
	schemas.KindGUI: `GUI - desktop input injection. {"kind":"GUI","gui":{"op":"MOVE|CLICK|DOUBLE_CLICK|TYPE|PRESS|SCROLL|ACTIVATE_WINDOW|WAIT_FOR_TEXT", "x":int, "y":int, "text":"...", "window":"...", "amount":int}}
  CLICK clicks at x/y. TYPE types text at the focused control. PRESS presses a key chord like "ctrl+s" or "enter". ACTIVATE_WINDOW focuses the window whose title contains "window". WAIT_FOR_TEXT waits until "text" appears on screen.
  Example: {"decision":"NEXT_ACTION","thought":"The calculator is open, type the expression.","action":{"kind":"GUI","gui":{"op":"TYPE","text":"2+2="}}}`,
	schemas.KindBrowser: `BROWSER - driven browser session. {"kind":"BROWSER","browser":{"op":"NAVIGATE|CLICK|TYPE|EXTRACT|SCREENSHOT|VERIFY_TEXT", "url":"...", "selector":"css", "text":"..."}}
  NAVIGATE loads url. CLICK/TYPE target the element matching selector. EXTRACT returns the page text. VERIFY_TEXT checks the page contains text.
  Example: {"decision":"NEXT_ACTION","thought":"Open the site first.","action":{"kind":"BROWSER","browser":{"op":"NAVIGATE","url":"https://example.com"}}}`,
	schemas.KindCode: `CODE - generate and run scripts. {"kind":"CODE","code":{"op":"GENERATE|EXECUTE|ANALYZE|RUN", "description":"...", "language":"python|javascript|shell", "source":"..."}}
  GENERATE writes a script for description. EXECUTE runs source. RUN generates from description and runs it immediately.
  Example: {"decision":"NEXT_ACTION","thought":"A script can rename the files in one pass.","action":{"kind":"CODE","code":{"op":"RUN","description":"rename all .txt files in ~/notes to .md","language":"python"}}}`,
	schemas.KindFile: `FILE - sandboxed file operations. {"kind":"FILE","file":{"op":"CREATE|READ|UPDATE|DELETE|LIST|SEARCH", "path":"relative/path", "content":"...", "query":"..."}}
  Paths are relative to the agent's file sandbox.
  Example: {"decision":"NEXT_ACTION","thought":"Save the result for the user.","action":{"kind":"FILE","file":{"op":"CREATE","path":"result.txt","content":"4"}}}`,
	schemas.KindSystem: `SYSTEM - commands and applications. {"kind":"SYSTEM","system":{"op":"COMMAND|LAUNCH_APP|INFO|PROCESSES", "command":"...", "app":"..."}}
  LAUNCH_APP starts an application by name. COMMAND runs a shell command; destructive commands are refused.
  Example: {"decision":"NEXT_ACTION","thought":"Open the calculator application.","action":{"kind":"SYSTEM","system":{"op":"LAUNCH_APP","app":"calculator"}}}`,
}

// buildSystemPrompt assembles the instruction set: the response contract plus
// the vocabulary of the kinds this task may use.
func buildSystemPrompt(allowed []schemas.ActionKind) string {
	kinds := allowed
	if len(kinds) == 0 {
		kinds = schemas.AllActionKinds()
	}

	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\nAction vocabulary:\n")
	for _, k := range kinds {
		if desc, ok := kindVocabulary[k]; ok {
			b.WriteString("- ")
			b.WriteString(desc)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// promptStep is the compact history entry serialized into the user prompt.
// It keeps the planner context small while preserving what mattered: what was
// tried, how it ended, and how often it was attempted.
type promptStep struct {
	Index         int    `json:"index"`
	Action        string `json:"action"`
	Thought       string `json:"thought,omitempty"`
	Status        string `json:"status"`
	Attempts      int    `json:"attempts"`
	ErrCode       string `json:"error_code,omitempty"`
	Detail        string `json:"detail,omitempty"`
	Output        string `json:"output,omitempty"`
	ScreenChanged bool   `json:"screen_changed"`
}

// buildUserPrompt marshals the goal, the bounded history window and the
// latest observation into the planning request.
func buildUserPrompt(goal schemas.Goal, history []schemas.Step, obs *schemas.Observation) (string, error) {
	steps := make([]promptStep, 0, len(history))
	for _, s := range history {
		ps := promptStep{
			Index:         s.Index,
			Action:        s.Action.Describe(),
			Thought:       truncate(s.Action.Thought, 200),
			Status:        string(s.Result.Status),
			Attempts:      s.Attempts,
			ErrCode:       s.Result.ErrCode,
			Detail:        truncate(s.Result.ErrDetail, 300),
			Output:        truncate(s.Result.Output, 500),
			ScreenChanged: s.ScreenChanged,
		}
		steps = append(steps, ps)
	}

	historyJSON, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("failed to marshal history window: %w", err)
	}

	screen := "(no observation captured yet)"
	window := ""
	if obs != nil {
		screen = truncate(obs.Text(), 6000)
		if obs.Window != nil {
			window = fmt.Sprintf("\nActive window: %s", obs.Window.Title)
		}
	}

	return fmt.Sprintf(`Goal: %s

Steps so far (oldest first, JSON):
%s

Current screen text:%s
%s

Determine the next verdict. Respond with a single JSON object.`, goal.Text, string(historyJSON), window, screen), nil
}

const verifySystemPrompt = `You verify the outcome of a desktop automation task.
Given the goal, the agent's completion summary and the final screen text, answer in one short sentence whether the screen supports the summary. Start with "confirmed:" or "unconfirmed:".`

// buildVerifyPrompt builds the fast-tier verification request issued after a
// COMPLETE verdict.
func buildVerifyPrompt(goal schemas.Goal, obs *schemas.Observation, summary string) string {
	screen := "(no final observation available)"
	if obs != nil {
		screen = truncate(obs.Text(), 4000)
	}
	return fmt.Sprintf("Goal: %s\nCompletion summary: %s\nFinal screen text:\n%s", goal.Text, summary, screen)
}
