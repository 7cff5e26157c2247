package config

// Buildfile represents the structure of the mason.yaml configuration file.
type Buildfile struct {
	Version string             `yaml:"version"`
	Tasks   map[string]TaskDTO `yaml:"tasks"`
}

// TaskDTO represents a task definition in the configuration.
type TaskDTO struct {
	Cmd            []string          `yaml:"cmd"`
	Action         string            `yaml:"action"`
	Tool           string            `yaml:"tool"`
	WorkingDir     string            `yaml:"workingDir"`
	Environment    map[string]string `yaml:"environment"`
	Inputs         []InputDTO        `yaml:"inputs"`
	Outputs        []string          `yaml:"outputs"`
	DependsOn      []string          `yaml:"dependsOn"`
	MustRunAfter   []string          `yaml:"mustRunAfter"`
	ShouldRunAfter []string          `yaml:"shouldRunAfter"`
	OnlyIf         *PredicateDTO     `yaml:"onlyIf"`
	Cacheable      bool              `yaml:"cacheable"`
	Parallel       bool              `yaml:"parallel"`
	Locks          []string          `yaml:"locks"`
}

// InputDTO represents one declared input property. Files and value are
// mutually exclusive.
type InputDTO struct {
	Name          string   `yaml:"name"`
	Files         []string `yaml:"files"`
	Value         string   `yaml:"value"`
	Normalization string   `yaml:"normalization"`
}

// PredicateDTO represents an execution predicate. When is a literal
// true/false; env/equals compare an environment variable at execution time.
type PredicateDTO struct {
	When   *bool  `yaml:"when"`
	Env    string `yaml:"env"`
	Equals string `yaml:"equals"`
	Negate bool   `yaml:"negate"`
}
