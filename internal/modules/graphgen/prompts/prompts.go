// Package prompts renders the LLM prompts used by knowledge tree generation.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/knowtree-backend/internal/platform/llm"
)

//go:embed prompts.yaml
var defaultYAML []byte

type Name string

const (
	AnalyzeInput   Name = "analyze_input"
	GenerateTree   Name = "generate_tree"
	ExpandTree     Name = "expand_tree"
	MatchResources Name = "match_resources"
)

var required = []Name{AnalyzeInput, GenerateTree, ExpandTree, MatchResources}

// Candidate is a resource offered to the matcher.
type Candidate struct {
	ID          string
	Title       string
	Description string
}

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	UserInput  string
	Domain     string
	Scope      string
	Difficulty string

	GenerateDepth  int
	FirstLevelMax  int
	SecondLevelMax int
	NodeBudget     int
	MaxTotalDepth  int

	NodeLabel       string
	NodeDescription string
	Path            string
	PathDepth       int

	Issues     []string
	References string
	Candidates []Candidate
}

// Spec is one prompt as declared in YAML.
type Spec struct {
	Version     int     `yaml:"version"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	JSON        bool    `yaml:"json"`
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
}

type file struct {
	Version int           `yaml:"version"`
	Prompts map[Name]Spec `yaml:"prompts"`
}

// Prompt is a rendered prompt plus its completion options.
type Prompt struct {
	Name     Name
	Version  int
	System   string
	User     string
	Options  llm.Options
	Messages []llm.Message
}

type compiled struct {
	spec   Spec
	system *template.Template
	user   *template.Template
}

// Registry holds compiled prompt templates.
type Registry struct {
	templates map[Name]compiled
}

// Default compiles the embedded prompt set.
func Default() (*Registry, error) {
	return Load(defaultYAML, nil)
}

// FromEnv compiles the embedded prompts, overlaid with GRAPH_PROMPTS_YAML when set.
func FromEnv() (*Registry, error) {
	path := strings.TrimSpace(os.Getenv("GRAPH_PROMPTS_YAML"))
	if path == "" {
		return Default()
	}
	override, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read GRAPH_PROMPTS_YAML: %w", err)
	}
	return Load(defaultYAML, override)
}

// Load compiles base, replacing any prompt also declared in override.
func Load(base, override []byte) (*Registry, error) {
	specs, err := decode(base)
	if err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	if len(override) > 0 {
		extra, err := decode(override)
		if err != nil {
			return nil, fmt.Errorf("decode prompt override: %w", err)
		}
		for name, s := range extra {
			specs[name] = s
		}
	}

	r := &Registry{templates: make(map[Name]compiled, len(specs))}
	for name, s := range specs {
		t, err := compile(name, s)
		if err != nil {
			return nil, err
		}
		r.templates[name] = t
	}
	for _, name := range required {
		if _, ok := r.templates[name]; !ok {
			return nil, fmt.Errorf("missing prompt: %s", name)
		}
	}
	return r, nil
}

func decode(data []byte) (map[Name]Spec, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Prompts == nil {
		f.Prompts = map[Name]Spec{}
	}
	return f.Prompts, nil
}

func compile(name Name, s Spec) (compiled, error) {
	if s.Version <= 0 {
		s.Version = 1
	}
	if strings.TrimSpace(s.User) == "" {
		return compiled{}, fmt.Errorf("prompt %s: user template is empty", name)
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return compiled{}, fmt.Errorf("%s system template parse: %w", name, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return compiled{}, fmt.Errorf("%s user template parse: %w", name, err)
	}
	return compiled{spec: s, system: sysT, user: userT}, nil
}

// Build renders the named prompt for in.
func (r *Registry) Build(name Name, in Input) (Prompt, error) {
	t, ok := r.templates[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", name)
	}
	if err := validate(name, in); err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", name, err)
	}
	system, err := render(t.system, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s system render: %w", name, err)
	}
	user, err := render(t.user, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s user render: %w", name, err)
	}

	opts := llm.Options{Temperature: llm.Temperature(t.spec.Temperature), MaxTokens: t.spec.MaxTokens}
	if t.spec.JSON {
		opts.ResponseFormat = llm.FormatJSON
	}
	p := Prompt{Name: name, Version: t.spec.Version, System: system, User: user, Options: opts}
	if system != "" {
		p.Messages = append(p.Messages, llm.System(system))
	}
	p.Messages = append(p.Messages, llm.User(user))
	return p, nil
}

func render(t *template.Template, in Input) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

func validate(name Name, in Input) error {
	if strings.TrimSpace(in.UserInput) == "" && name != MatchResources {
		return fmt.Errorf("UserInput required")
	}
	switch name {
	case ExpandTree:
		if strings.TrimSpace(in.NodeLabel) == "" {
			return fmt.Errorf("NodeLabel required")
		}
	case MatchResources:
		if strings.TrimSpace(in.NodeLabel) == "" {
			return fmt.Errorf("NodeLabel required")
		}
		if len(in.Candidates) == 0 {
			return fmt.Errorf("Candidates required")
		}
	}
	return nil
}
