// internal/executor/code.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/llmutil"
)

const codeGenSystemPrompt = `You write small, self-contained %s programs that accomplish a described task.
Rules:
- Output ONLY the program source, with no explanation and no markdown fences.
- The program must be complete and runnable as-is.
- Print results to stdout so the caller can read them.
- Never require interactive input.`

// languageExtensions maps canonical language names to source file extensions.
var languageExtensions = map[string]string{
	"python":     ".py",
	"javascript": ".js",
	"shell":      ".sh",
}

// normalizeLanguage folds the aliases planners tend to emit onto the
// canonical names used for interpreter lookup.
func normalizeLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "python", "python3", "py":
		return "python"
	case "javascript", "js", "node", "nodejs":
		return "javascript"
	case "shell", "sh", "bash":
		return "shell"
	case "":
		return "python"
	default:
		return strings.ToLower(strings.TrimSpace(lang))
	}
}

// -- Code Executor --

// CodeExecutor generates scripts with the LLM, syntax-checks them, and runs
// them in a workspace directory. When versioning is enabled every generated
// script is committed to a git repository in the workspace, leaving an
// auditable trail of what the agent wrote and ran.
type CodeExecutor struct {
	logger *zap.Logger
	cfg    config.CodeConfig
	llm    schemas.LLMClient

	repoOnce sync.Once
	repoErr  error
	repo     *git.Repository
}

var _ schemas.ActionExecutor = (*CodeExecutor)(nil)

// NewCodeExecutor creates a code executor. The LLM client may be nil, in
// which case GENERATE and RUN report an unsupported operation.
func NewCodeExecutor(logger *zap.Logger, cfg config.CodeConfig, llm schemas.LLMClient) *CodeExecutor {
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = filepath.Join(os.TempDir(), "deskpilot-workspace")
	}
	return &CodeExecutor{
		logger: logger.Named("code_executor"),
		cfg:    cfg,
		llm:    llm,
	}
}

// Execute dispatches the code operation.
func (e *CodeExecutor) Execute(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.Code
	if p == nil {
		return schemas.FailureResult(schemas.ErrCodeInternal, "action carries no code parameters"), nil
	}

	switch p.Op {
	case schemas.CodeGenerate:
		return e.handleGenerate(ctx, p)
	case schemas.CodeAnalyze:
		return e.handleAnalyze(p)
	case schemas.CodeExecute:
		return e.handleExecute(ctx, p.Language, p.Source)
	case schemas.CodeRun:
		return e.handleRun(ctx, p)
	default:
		return schemas.FailureResult(schemas.ErrCodeUnsupported, fmt.Sprintf("unknown code operation: %s", p.Op)), nil
	}
}

// handleGenerate asks the LLM for a script and saves it into the workspace.
func (e *CodeExecutor) handleGenerate(ctx context.Context, p *schemas.CodeParams) (*schemas.ActionResult, error) {
	source, lang, err := e.generate(ctx, p)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution, err.Error()), nil
	}

	path, err := e.saveSnippet(source, lang, p.Description)
	if err != nil {
		return nil, err
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("generated %d bytes of %s at %s", len(source), lang, path),
		Data:   map[string]interface{}{"path": path, "source": source, "language": lang},
	}, nil
}

// handleAnalyze syntax-checks the provided source with tree-sitter.
func (e *CodeExecutor) handleAnalyze(p *schemas.CodeParams) (*schemas.ActionResult, error) {
	if strings.TrimSpace(p.Source) == "" {
		return schemas.FailureResult(schemas.ErrCodeSyntax, "code ANALYZE requires source to analyze"), nil
	}
	lang := normalizeLanguage(p.Language)

	problems, err := syntaxErrors(lang, p.Source)
	if err != nil {
		if errors.Is(err, errNoGrammar) {
			return schemas.FailureResult(schemas.ErrCodeUnsupported,
				fmt.Sprintf("no syntax analysis available for language %q", lang)), nil
		}
		return nil, err
	}

	if len(problems) > 0 {
		return schemas.FailureResult(schemas.ErrCodeSyntax,
			fmt.Sprintf("%d syntax problem(s): %s", len(problems), strings.Join(problems, "; "))), nil
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("%s source parsed cleanly", lang),
	}, nil
}

// handleExecute runs the given source under its configured interpreter.
func (e *CodeExecutor) handleExecute(ctx context.Context, language, source string) (*schemas.ActionResult, error) {
	if strings.TrimSpace(source) == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "code EXECUTE requires source to run"), nil
	}
	lang := normalizeLanguage(language)

	interpreter, ok := e.cfg.Interpreters[lang]
	if !ok {
		return schemas.FailureResult(schemas.ErrCodeUnsupported,
			fmt.Sprintf("no interpreter configured for language %q", lang)), nil
	}

	path, err := e.saveSnippet(source, lang, "")
	if err != nil {
		return nil, err
	}

	timeout := e.cfg.ExecTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	cmd := exec.CommandContext(runCtx, interpreter, path)
	cmd.Dir = e.cfg.WorkspaceDir
	output, runErr := cmd.CombinedOutput()
	elapsed := time.Since(started)

	text := strings.TrimSpace(string(output))
	if runErr != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return schemas.TimeoutResult(fmt.Sprintf("script exceeded %s (partial output: %s)", timeout, truncateOutput(text, 500))), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return schemas.FailureResult(schemas.ErrCodeExecution,
			fmt.Sprintf("script failed: %v (output: %s)", runErr, truncateOutput(text, 1000))), nil
	}

	e.logger.Debug("Script executed",
		zap.String("interpreter", interpreter),
		zap.String("path", path),
		zap.Duration("elapsed", elapsed))
	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        text,
		Data:          map[string]interface{}{"path": path, "exit_code": 0},
		NonIdempotent: true,
	}, nil
}

// handleRun chains generation, a syntax gate, and execution. A script that
// does not parse is never run; the planner sees the syntax failure instead.
func (e *CodeExecutor) handleRun(ctx context.Context, p *schemas.CodeParams) (*schemas.ActionResult, error) {
	source, lang, err := e.generate(ctx, p)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution, err.Error()), nil
	}

	if problems, serr := syntaxErrors(lang, source); serr == nil && len(problems) > 0 {
		return schemas.FailureResult(schemas.ErrCodeSyntax,
			fmt.Sprintf("generated script has %d syntax problem(s): %s", len(problems), strings.Join(problems, "; "))), nil
	}

	result, err := e.handleExecute(ctx, lang, source)
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		result.Data = map[string]interface{}{}
	}
	result.Data["source"] = source
	result.Data["language"] = lang
	return result, nil
}

func (e *CodeExecutor) generate(ctx context.Context, p *schemas.CodeParams) (string, string, error) {
	if e.llm == nil {
		return "", "", fmt.Errorf("no LLM client configured for code generation")
	}
	if strings.TrimSpace(p.Description) == "" {
		return "", "", fmt.Errorf("code generation requires a task description")
	}
	lang := normalizeLanguage(p.Language)

	raw, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: fmt.Sprintf(codeGenSystemPrompt, lang),
		UserPrompt:   p.Description,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	})
	if err != nil {
		return "", "", fmt.Errorf("code generation failed: %w", err)
	}

	source := llmutil.CleanCodeOutput(raw)
	if source == "" {
		return "", "", fmt.Errorf("LLM returned an empty program")
	}
	return source, lang, nil
}

// saveSnippet writes the source into the workspace and, when versioning is
// enabled, commits it.
func (e *CodeExecutor) saveSnippet(source, lang, description string) (string, error) {
	if err := os.MkdirAll(e.cfg.WorkspaceDir, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace dir: %w", err)
	}

	ext, ok := languageExtensions[lang]
	if !ok {
		ext = ".txt"
	}
	name := fmt.Sprintf("snippet-%s%s", uuid.NewString()[:8], ext)
	path := filepath.Join(e.cfg.WorkspaceDir, name)
	if err := os.WriteFile(path, []byte(source+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing snippet: %w", err)
	}

	if e.cfg.VersionWorkspace {
		msg := fmt.Sprintf("add %s", name)
		if description != "" {
			msg = fmt.Sprintf("add %s: %s", name, truncateOutput(description, 72))
		}
		if err := e.commitSnippet(name, msg); err != nil {
			// Versioning is best effort. The script itself is already on disk.
			e.logger.Warn("Could not commit snippet to workspace repository", zap.Error(err))
		}
	}
	return path, nil
}

func (e *CodeExecutor) commitSnippet(name, message string) error {
	e.repoOnce.Do(func() {
		repo, err := git.PlainOpen(e.cfg.WorkspaceDir)
		if errors.Is(err, git.ErrRepositoryNotExists) {
			repo, err = git.PlainInit(e.cfg.WorkspaceDir, false)
		}
		if err != nil {
			e.repoErr = fmt.Errorf("opening workspace repository: %w", err)
			return
		}
		e.repo = repo
	})
	if e.repoErr != nil {
		return e.repoErr
	}

	wt, err := e.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	if _, err := wt.Add(name); err != nil {
		return fmt.Errorf("staging %s: %w", name, err)
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "deskpilot",
			Email: "deskpilot@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing %s: %w", name, err)
	}
	return nil
}

// -- Syntax analysis --

var errNoGrammar = errors.New("no grammar for language")

// grammarFor returns the tree-sitter grammar for languages we can check.
func grammarFor(lang string) (*sitter.Language, error) {
	switch lang {
	case "python":
		return python.GetLanguage(), nil
	case "javascript":
		return javascript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", errNoGrammar, lang)
	}
}

// syntaxErrors parses the source and reports the location of every error or
// missing node the grammar found.
func syntaxErrors(lang, source string) ([]string, error) {
	grammar, err := grammarFor(lang)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil {
		return nil, fmt.Errorf("tree-sitter failed to parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	var problems []string
	collectErrorNodes(root, &problems)
	if len(problems) == 0 {
		// HasError was set but no concrete node surfaced; report the root.
		problems = append(problems, "unlocatable syntax error")
	}
	return problems, nil
}

func collectErrorNodes(node *sitter.Node, out *[]string) {
	if node.Type() == "ERROR" || node.IsMissing() {
		point := node.StartPoint()
		kind := "error"
		if node.IsMissing() {
			kind = "missing " + node.Type()
		}
		*out = append(*out, fmt.Sprintf("%s at line %d, column %d", kind, point.Row+1, point.Column+1))
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectErrorNodes(node.Child(i), out)
	}
}

func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
