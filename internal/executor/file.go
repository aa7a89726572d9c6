// internal/executor/file.go
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

const searchResultLimit = 50

// FileExecutor performs file operations confined to a root directory. Every
// path in an action is resolved against the root and rejected if it escapes,
// so a misguided plan cannot touch the rest of the filesystem.
type FileExecutor struct {
	logger  *zap.Logger
	root    string
	maxRead int64
}

var _ schemas.ActionExecutor = (*FileExecutor)(nil)

// NewFileExecutor creates a file executor rooted at cfg.RootDir. The root is
// created if it does not exist yet.
func NewFileExecutor(logger *zap.Logger, cfg config.FileConfig) (*FileExecutor, error) {
	root := cfg.RootDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "deskpilot-files")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving file root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating file root: %w", err)
	}

	maxRead := cfg.MaxReadBytes
	if maxRead <= 0 {
		maxRead = 1 << 20
	}
	return &FileExecutor{
		logger:  logger.Named("file_executor"),
		root:    abs,
		maxRead: maxRead,
	}, nil
}

// Root reports the absolute sandbox root.
func (e *FileExecutor) Root() string {
	return e.root
}

// resolve maps an action path into the sandbox, rejecting escapes.
func (e *FileExecutor) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	rel, err := filepath.Rel(e.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the sandbox root %q", path, e.root)
	}
	return abs, nil
}

// Execute dispatches the file operation. All failures come back as
// structured results; only context cancellation is surfaced as an error.
func (e *FileExecutor) Execute(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	p := action.File
	if p == nil {
		return schemas.FailureResult(schemas.ErrCodeInternal, "action carries no file parameters"), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch p.Op {
	case schemas.FileCreate:
		return e.handleCreate(p)
	case schemas.FileRead:
		return e.handleRead(p)
	case schemas.FileUpdate:
		return e.handleUpdate(p)
	case schemas.FileDelete:
		return e.handleDelete(p)
	case schemas.FileList:
		return e.handleList(p)
	case schemas.FileSearch:
		return e.handleSearch(ctx, p)
	default:
		return schemas.FailureResult(schemas.ErrCodeUnsupported, fmt.Sprintf("unknown file operation: %s", p.Op)), nil
	}
}

// handleCreate writes a new file. An existing file is an error so the
// planner must consciously choose UPDATE to overwrite.
func (e *FileExecutor) handleCreate(p *schemas.FileParams) (*schemas.ActionResult, error) {
	path, err := e.resolve(p.Path)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodePathEscape, err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution, fmt.Sprintf("creating parent directory: %v", err)), nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return schemas.FailureResult(schemas.ErrCodeExecution,
				fmt.Sprintf("%s already exists; use UPDATE to overwrite", p.Path)), nil
		}
		return schemas.FailureResult(schemas.ErrCodeExecution, err.Error()), nil
	}
	defer f.Close()

	if _, err := f.WriteString(p.Content); err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution, fmt.Sprintf("writing %s: %v", p.Path, err)), nil
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("created %s (%d bytes)", p.Path, len(p.Content)),
		Data:   map[string]interface{}{"path": path},
	}, nil
}

func (e *FileExecutor) handleRead(p *schemas.FileParams) (*schemas.ActionResult, error) {
	path, err := e.resolve(p.Path)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodePathEscape, err.Error()), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return schemas.FailureResult(schemas.ErrCodeNotFound, fmt.Sprintf("%s does not exist", p.Path)), nil
		}
		return schemas.FailureResult(schemas.ErrCodeExecution, err.Error()), nil
	}
	if info.IsDir() {
		return schemas.FailureResult(schemas.ErrCodeExecution, fmt.Sprintf("%s is a directory; use LIST", p.Path)), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution, err.Error()), nil
	}
	defer f.Close()

	limit := e.maxRead
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution, fmt.Sprintf("reading %s: %v", p.Path, err)), nil
	}
	content := string(data)
	truncated := info.Size() > limit

	output := content
	if truncated {
		output = fmt.Sprintf("%s\n[truncated: %d of %d bytes shown]", content, len(data), info.Size())
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: output,
		Data: map[string]interface{}{
			"path":      path,
			"size":      info.Size(),
			"truncated": truncated,
		},
	}, nil
}

func (e *FileExecutor) handleUpdate(p *schemas.FileParams) (*schemas.ActionResult, error) {
	path, err := e.resolve(p.Path)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodePathEscape, err.Error()), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return schemas.FailureResult(schemas.ErrCodeNotFound,
			fmt.Sprintf("%s does not exist; use CREATE first", p.Path)), nil
	}
	if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
		return schemas.FailureResult(schemas.ErrCodeExecution, fmt.Sprintf("updating %s: %v", p.Path, err)), nil
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: fmt.Sprintf("updated %s (%d bytes)", p.Path, len(p.Content)),
		Data:   map[string]interface{}{"path": path},
	}, nil
}

func (e *FileExecutor) handleDelete(p *schemas.FileParams) (*schemas.ActionResult, error) {
	path, err := e.resolve(p.Path)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodePathEscape, err.Error()), nil
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return schemas.FailureResult(schemas.ErrCodeNotFound, fmt.Sprintf("%s does not exist", p.Path)), nil
		}
		return schemas.FailureResult(schemas.ErrCodeExecution, fmt.Sprintf("deleting %s: %v", p.Path, err)), nil
	}
	return &schemas.ActionResult{
		Status:        schemas.ResultSuccess,
		Output:        fmt.Sprintf("deleted %s", p.Path),
		NonIdempotent: true,
	}, nil
}

func (e *FileExecutor) handleList(p *schemas.FileParams) (*schemas.ActionResult, error) {
	target := p.Path
	if target == "" {
		target = "."
	}
	path, err := e.resolve(target)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodePathEscape, err.Error()), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return schemas.FailureResult(schemas.ErrCodeNotFound, fmt.Sprintf("%s does not exist", target)), nil
		}
		return schemas.FailureResult(schemas.ErrCodeExecution, err.Error()), nil
	}

	names := make([]string, 0, len(entries))
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
		lines = append(lines, name)
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: strings.Join(lines, "\n"),
		Data:   map[string]interface{}{"path": path, "entries": names, "count": len(names)},
	}, nil
}

// handleSearch matches the query against file names and, for text files,
// their contents. Results are capped so a broad query cannot flood the
// planner's context.
func (e *FileExecutor) handleSearch(ctx context.Context, p *schemas.FileParams) (*schemas.ActionResult, error) {
	if strings.TrimSpace(p.Query) == "" {
		return schemas.FailureResult(schemas.ErrCodeExecution, "file SEARCH requires a query"), nil
	}
	start := p.Path
	if start == "" {
		start = "."
	}
	root, err := e.resolve(start)
	if err != nil {
		return schemas.FailureResult(schemas.ErrCodePathEscape, err.Error()), nil
	}

	query := strings.ToLower(p.Query)
	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Unreadable entries are skipped, not fatal.
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(matches) >= searchResultLimit {
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(d.Name()), query) {
			matches = append(matches, rel)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if hit, line := e.grepFile(path, query); hit {
			matches = append(matches, fmt.Sprintf("%s:%d", rel, line))
		}
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(matches) == 0 {
		return &schemas.ActionResult{
			Status: schemas.ResultSuccess,
			Output: fmt.Sprintf("no matches for %q", p.Query),
			Data:   map[string]interface{}{"matches": []string{}, "count": 0},
		}, nil
	}
	return &schemas.ActionResult{
		Status: schemas.ResultSuccess,
		Output: strings.Join(matches, "\n"),
		Data:   map[string]interface{}{"matches": matches, "count": len(matches)},
	}, nil
}

// grepFile reports whether a small text file contains the query and on which
// line. Binary and oversized files are skipped.
func (e *FileExecutor) grepFile(path, loweredQuery string) (bool, int) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > e.maxRead {
		return false, 0
	}
	data, err := os.ReadFile(path)
	if err != nil || bytes.IndexByte(data, 0) != -1 {
		return false, 0
	}
	for i, line := range strings.Split(string(data), "\n") {
		if strings.Contains(strings.ToLower(line), loweredQuery) {
			return true, i + 1
		}
	}
	return false, 0
}
