package verdict

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// promptDef is one named prompt: a static system block and a user template.
type promptDef struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// PromptStore holds the judge prompts, parsed once at startup.
type PromptStore struct {
	prompts map[string]promptDef
	tmpl    map[string]*template.Template
}

// LoadPrompts parses the embedded prompt file.
func LoadPrompts() (*PromptStore, error) {
	return parsePrompts(promptsYAML)
}

func parsePrompts(raw []byte) (*PromptStore, error) {
	var prompts map[string]promptDef
	if err := yaml.Unmarshal(raw, &prompts); err != nil {
		return nil, eris.Wrap(err, "verdict: parse prompts")
	}

	funcs := template.FuncMap{"join": strings.Join}
	tmpls := make(map[string]*template.Template, len(prompts))
	for name, def := range prompts {
		t, err := template.New(name).Funcs(funcs).Parse(def.User)
		if err != nil {
			return nil, eris.Wrapf(err, "verdict: parse user template %q", name)
		}
		tmpls[name] = t
	}

	return &PromptStore{prompts: prompts, tmpl: tmpls}, nil
}

// System returns the system prompt for a named prompt.
func (s *PromptStore) System(name string) (string, error) {
	def, ok := s.prompts[name]
	if !ok {
		return "", eris.Errorf("verdict: unknown prompt %q", name)
	}
	return def.System, nil
}

// RenderUser renders the named user template with data.
func (s *PromptStore) RenderUser(name string, data any) (string, error) {
	t, ok := s.tmpl[name]
	if !ok {
		return "", eris.Errorf("verdict: unknown prompt %q", name)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", eris.Wrapf(err, "verdict: render prompt %q", name)
	}
	return b.String(), nil
}
