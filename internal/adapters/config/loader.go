// Package config provides the configuration loader for mason.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"go.trai.ch/mason/internal/core/domain"
	"go.trai.ch/mason/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using a YAML build file. It tracks
// every file read and every environment variable expanded so the
// configuration cache can decide later whether its snapshot is still valid.
type Loader struct {
	Filename string
}

// NewLoader creates a loader for the default build file name.
func NewLoader() *Loader {
	return &Loader{Filename: domain.BuildFileName}
}

// Load reads the configuration from the given working directory.
func (l *Loader) Load(cwd string) (*ports.LoadResult, error) {
	path := filepath.Join(cwd, l.Filename)

	data, err := os.ReadFile(path) //nolint:gosec // path is the workspace build file
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read build file"), "path", path)
	}

	// Decode through yaml.Node first: task definitions keep their source
	// line, which configuration cache problem reports need.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse build file"), "path", path)
	}

	var buildfile Buildfile
	if err := doc.Decode(&buildfile); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to decode build file"), "path", path)
	}

	taskLines := taskLineIndex(&doc)

	envReads := make(map[string]string)
	g := domain.NewGraph()

	taskNames := make(map[string]bool, len(buildfile.Tasks))
	for name := range buildfile.Tasks {
		taskNames[name] = true
	}

	// Deterministic iteration keeps error reporting and the serialized
	// graph stable.
	names := make([]string, 0, len(buildfile.Tasks))
	for name := range buildfile.Tasks {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		dto := buildfile.Tasks[name]

		if name == "all" {
			return nil, zerr.With(zerr.New("task name 'all' is reserved"), "task", name)
		}

		for _, dep := range slices.Concat(dto.DependsOn, dto.MustRunAfter, dto.ShouldRunAfter) {
			if !taskNames[dep] {
				return nil, zerr.With(
					zerr.With(zerr.Wrap(domain.ErrMissingDependency, dep), "task", name),
					"dependency", dep)
			}
		}

		node, err := l.buildNode(name, dto, path, taskLines[name], envReads)
		if err != nil {
			return nil, err
		}

		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}

	return &ports.LoadResult{
		Graph:       g,
		ConfigFiles: []string{path},
		EnvReads:    envReads,
	}, nil
}

func (l *Loader) buildNode(name string, dto TaskDTO, file string, line int, envReads map[string]string) (*domain.Node, error) {
	if len(dto.Cmd) > 0 && dto.Action != "" {
		return nil, zerr.With(zerr.New("task declares both cmd and action"), "task", name)
	}

	inputs := make([]domain.InputProperty, 0, len(dto.Inputs))
	for _, in := range dto.Inputs {
		norm, err := parseNormalization(in.Normalization, len(in.Files) > 0)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "task", name), "input", in.Name)
		}
		inputs = append(inputs, domain.InputProperty{
			Name:          domain.NewInternedString(in.Name),
			Patterns:      domain.InternStrings(in.Files),
			Value:         expandEnv(in.Value, envReads),
			Normalization: norm,
		})
	}

	cmd := make([]string, len(dto.Cmd))
	for i, arg := range dto.Cmd {
		cmd[i] = expandEnv(arg, envReads)
	}

	return &domain.Node{
		Name:           domain.NewInternedString(name),
		Command:        cmd,
		ActionName:     dto.Action,
		Tool:           dto.Tool,
		WorkingDir:     domain.NewInternedString(dto.WorkingDir),
		Environment:    dto.Environment,
		Inputs:         inputs,
		Outputs:        canonicalize(dto.Outputs),
		DependsOn:      domain.InternStrings(dto.DependsOn),
		MustRunAfter:   domain.InternStrings(dto.MustRunAfter),
		ShouldRunAfter: domain.InternStrings(dto.ShouldRunAfter),
		OnlyIf:         buildPredicate(dto.OnlyIf),
		Cacheable:      dto.Cacheable,
		// Concurrency is opt-in: a task that does not declare itself parallel
		// runs serially relative to other undeclared tasks.
		ParallelSafe: dto.Parallel,
		Locks:        domain.InternStrings(dto.Locks),
		Pos: domain.SourcePos{

			File: domain.NewInternedString(file),
			Line: line,
		},
	}, nil
}

func buildPredicate(dto *PredicateDTO) domain.Predicate {
	if dto == nil {
		return domain.Predicate{}
	}
	if dto.When != nil {
		return domain.Predicate{Constant: dto.When}
	}
	return domain.Predicate{
		EnvVar: domain.NewInternedString(dto.Env),
		Equals: dto.Equals,
		Negate: dto.Negate,
	}
}

func parseNormalization(s string, isFileInput bool) (domain.Normalization, error) {
	switch domain.Normalization(s) {
	case domain.NormalizationAbsolutePath,
		domain.NormalizationRelativePath,
		domain.NormalizationNameOnly,
		domain.NormalizationContentOnly,
		domain.NormalizationNone:
		return domain.Normalization(s), nil
	case "":
		if isFileInput {
			return domain.NormalizationRelativePath, nil
		}
		return domain.NormalizationAbsolutePath, nil
	default:
		return "", zerr.With(zerr.New("unknown normalization strategy"), "strategy", s)
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references and records each variable read so
// the configuration cache can invalidate on changes.
func expandEnv(s string, reads map[string]string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		value := os.Getenv(key)
		reads[key] = value
		return value
	})
}

// taskLineIndex maps task names to the line of their definition.
func taskLineIndex(doc *yaml.Node) map[string]int {
	lines := make(map[string]int)
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return lines
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "tasks" {
			continue
		}
		tasks := root.Content[i+1]
		for j := 0; j+1 < len(tasks.Content); j += 2 {
			lines[tasks.Content[j].Value] = tasks.Content[j].Line
		}
	}
	return lines
}

func canonicalize(strs []string) []domain.InternedString {
	if len(strs) == 0 {
		return nil
	}
	sorted := slices.Clone(strs)
	slices.Sort(sorted)
	return domain.InternStrings(slices.Compact(sorted))
}
