package config

import (
	"fmt"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ProjectFile is the canonical project definition file name.
const ProjectFile = "meltano.yml"

// Project is the read-only project context shared by reference across
// all workers. It is never mutated after Load, so access requires no
// locking.
type Project struct {
	Name    string `yaml:"name"`
	Version int    `yaml:"version,omitempty"`

	root string
}

// Load reads and validates the project file found in `dir`.
func Load(dir string) (*Project, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ProjectFile))
	if err != nil {
		return nil, errors.Wrap(err, "read "+ProjectFile)
	}

	project := &Project{root: dir}
	if err := yaml.Unmarshal(raw, project); err != nil {
		return nil, errors.Wrap(err, "parse "+ProjectFile)
	}
	if err := project.Validate(); err != nil {
		return nil, errors.Wrap(err, ProjectFile)
	}

	return project, nil
}

// Validate checks the required project fields.
func (p *Project) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required),
	)
}

// RootDir joins `parts` onto the project root directory.
func (p *Project) RootDir(parts ...string) string {
	return filepath.Join(append([]string{p.root}, parts...)...)
}

// ModelDir is where the project model definitions live.
func (p *Project) ModelDir() string {
	return p.RootDir("model")
}

// RunDir holds generated runtime artifacts, compiled models included.
func (p *Project) RunDir() string {
	return p.RootDir(".meltano", "run")
}

// TransformDir is the working directory of the transform tooling.
func (p *Project) TransformDir() string {
	return p.RootDir("transform")
}

// UICfgPath is the location of the server secrets file.
func (p *Project) UICfgPath() string {
	return p.RootDir(UICfgFile)
}

// UIConfig is the bind configuration of the API server.
type UIConfig struct {
	Bind     string
	BindPort int
	Reload   bool
}

// Validate checks the required bind fields.
func (c UIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Bind, validation.Required),
		validation.Field(&c.BindPort, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// TCPAddr returns the listen address for the API server.
func (c UIConfig) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.BindPort)
}
