package skills

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"skillhost/pkg/logger"
)

var (
	skillNameRegex      = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	frontmatterKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*:`)
)

// SkillInfo is one loaded skill manifest. Immutable after load; a
// reload produces fresh instances.
type SkillInfo struct {
	Name         string
	Description  string
	Emoji        string
	AlwaysOn     bool
	RequiresEnv  []string
	RequiresBins []string
	// Command is an optional shell command template with {{placeholders}}
	// executed when the skill is routed to.
	Command string
	// FetchURL is an optional URL template fetched when the skill is
	// routed to. Command takes precedence when both are set.
	FetchURL string
	// Metadata keeps unrecognized manifest keys verbatim. The runtime
	// ignores them but tools may inspect them.
	Metadata map[string]interface{}
	Path     string

	loadOrder int
}

// LoadOrder is the deterministic position of this skill in its registry.
func (s *SkillInfo) LoadOrder() int {
	return s.loadOrder
}

func (s *SkillInfo) validate() error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	} else if !skillNameRegex.MatchString(s.Name) {
		problems = append(problems, "name must be alphanumeric with hyphens")
	}
	if strings.TrimSpace(s.Description) == "" {
		problems = append(problems, "description is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// SkillsLoader reads SKILL.md manifests from <workspace>/skills/<name>/.
type SkillsLoader struct {
	workspace  string
	builtinDir string
	extraDir   string
}

func NewSkillsLoader(workspace, builtinDir, extraDir string) *SkillsLoader {
	return &SkillsLoader{
		workspace:  workspace,
		builtinDir: builtinDir,
		extraDir:   extraDir,
	}
}

func (l *SkillsLoader) skillDirs() []string {
	dirs := []string{filepath.Join(l.workspace, "skills")}
	if strings.TrimSpace(l.builtinDir) != "" {
		dirs = append(dirs, l.builtinDir)
	}
	if strings.TrimSpace(l.extraDir) != "" {
		dirs = append(dirs, l.extraDir)
	}
	return dirs
}

// ListSkills returns all parseable manifests in deterministic order
// (sorted directory name within each root, workspace root first).
// Manifests that fail to parse are skipped with a warning; strict
// validation happens at registry load.
func (l *SkillsLoader) ListSkills() []*SkillInfo {
	var out []*SkillInfo
	for _, root := range l.skillDirs() {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			mdPath := filepath.Join(root, name, "SKILL.md")
			info, err := l.parseSkillFile(name, mdPath)
			if err != nil {
				if !os.IsNotExist(err) {
					logger.WarnCF("skills", "Skipping unparsable skill manifest",
						map[string]interface{}{"path": mdPath, "error": err.Error()})
				}
				continue
			}
			out = append(out, info)
		}
	}
	return out
}

// LoadSkill returns the SKILL.md body for name with only the leading
// frontmatter block stripped. Later "---" lines stay part of the body.
func (l *SkillsLoader) LoadSkill(name string) (string, bool) {
	for _, root := range l.skillDirs() {
		path := filepath.Join(root, name, "SKILL.md")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return stripFrontmatter(string(data)), true
	}
	return "", false
}

func (l *SkillsLoader) parseSkillFile(dirName, path string) (*SkillInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	front := extractFrontmatter(string(data))
	info := &SkillInfo{
		Name: dirName,
		Path: filepath.Dir(path),
	}

	if v := frontmatterValue(front, "name"); v != "" {
		info.Name = v
	}
	info.Description = frontmatterValue(front, "description")

	if metaRaw := frontmatterBlock(front, "metadata"); metaRaw != "" {
		var meta map[string]interface{}
		if err := json.Unmarshal([]byte(strings.ReplaceAll(metaRaw, "'", `"`)), &meta); err != nil {
			return nil, fmt.Errorf("parse metadata of %s: %w", path, err)
		}
		info.Metadata = meta
		applyRuntimeMetadata(info, meta)
	}

	return info, nil
}

// applyRuntimeMetadata picks the keys the runtime recognizes out of the
// "skillhost" metadata namespace. Everything else stays in Metadata.
func applyRuntimeMetadata(info *SkillInfo, meta map[string]interface{}) {
	ns, _ := meta["skillhost"].(map[string]interface{})
	if ns == nil {
		return
	}
	if emoji, ok := ns["emoji"].(string); ok {
		info.Emoji = emoji
	}
	if always, ok := ns["always"].(bool); ok {
		info.AlwaysOn = always
	}
	if cmd, ok := ns["command"].(string); ok {
		info.Command = cmd
	}
	if fetch, ok := ns["fetch"].(string); ok {
		info.FetchURL = fetch
	}
	if requires, ok := ns["requires"].(map[string]interface{}); ok {
		info.RequiresEnv = stringSlice(requires["env"])
		info.RequiresBins = stringSlice(requires["bins"])
	}
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func extractFrontmatter(content string) string {
	lines := strings.Split(content, "\n")
	var collected []string
	inFront := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "---" {
			if !inFront {
				inFront = true
				continue
			}
			break
		}
		if inFront {
			collected = append(collected, line)
		}
	}
	return strings.Join(collected, "\n")
}

func stripFrontmatter(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}

func frontmatterValue(front, key string) string {
	for _, line := range strings.Split(front, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, key+":") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(trimmed, key+":"))
		value = strings.Trim(value, `"'`)
		return value
	}
	return ""
}

// frontmatterBlock returns the raw value of key, joining continuation
// lines so metadata JSON may span multiple lines.
func frontmatterBlock(front, key string) string {
	lines := strings.Split(front, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, key+":") {
			continue
		}
		parts := []string{strings.TrimSpace(strings.TrimPrefix(trimmed, key+":"))}
		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimSpace(lines[j])
			// A new top-level "key:" line ends the block.
			if frontmatterKeyRegex.MatchString(next) {
				break
			}
			parts = append(parts, next)
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return ""
}
