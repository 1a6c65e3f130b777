package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

var ErrInvalidJob = errors.New("invalid job")

const (
	PullIfNotPresent = "IfNotPresent"
	PullAlways       = "Always"

	SecretFileYAML = "yaml"
	SecretFileJSON = "json"
)

var (
	PullPolicies    = []string{PullIfNotPresent, PullAlways}
	SecretFileTypes = []string{SecretFileYAML, SecretFileJSON}
)

// JobSpec is the form state captured at the moment Run is pressed. Content,
// when set, is already "targz,<base64>".
type JobSpec struct {
	QName           string `yaml:"qname"`
	ContainerImage  string `yaml:"container_image"`
	ImagePullPolicy string `yaml:"image_pull_policy"`
	Content         string `yaml:"-"`
	ContentFile     string `yaml:"content_file"`
	EntryPoint      string `yaml:"entrypoint"`
	Run             string `yaml:"run"`
	WorkingDir      string `yaml:"working_directory"`
	EnvVars         KVList `yaml:"env_vars"`
	SecretRefs      KVList `yaml:"secret_refs"`
	SecretFileType  string `yaml:"secret_file_type"`
	ContOnWarnings  bool   `yaml:"cont_on_warnings"`
}

// JobRequest is the JSON document that gets encrypted for gostint.
type JobRequest struct {
	QName           string   `json:"qname"`
	ContainerImage  string   `json:"container_image"`
	ImagePullPolicy string   `json:"image_pull_policy"`
	Content         string   `json:"content"`
	EntryPoint      []string `json:"entrypoint"`
	Run             []string `json:"run"`
	WorkingDir      string   `json:"working_directory"`
	EnvVars         []string `json:"env_vars"`
	SecretRefs      []string `json:"secret_refs"`
	SecretFileType  string   `json:"secret_file_type"`
	ContOnWarnings  bool     `json:"cont_on_warnings"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJob, fmt.Sprintf(format, args...))
}

func (s JobSpec) withDefaults() JobSpec {
	if s.ImagePullPolicy == "" {
		s.ImagePullPolicy = PullIfNotPresent
	}
	if s.SecretFileType == "" {
		s.SecretFileType = SecretFileYAML
	}
	s.QName = strings.TrimSpace(s.QName)
	s.ContainerImage = strings.TrimSpace(s.ContainerImage)
	return s
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func (s JobSpec) Validate() error {
	s = s.withDefaults()
	if s.ContainerImage == "" {
		return invalid("container image is required")
	}
	if _, err := name.ParseReference(s.ContainerImage); err != nil {
		return invalid("container image %q: %v", s.ContainerImage, err)
	}
	if strings.TrimSpace(s.Run) == "" {
		return invalid("run command is required")
	}
	if !oneOf(s.ImagePullPolicy, PullPolicies) {
		return invalid("image pull policy must be one of %s", strings.Join(PullPolicies, ", "))
	}
	if !oneOf(s.SecretFileType, SecretFileTypes) {
		return invalid("secret file type must be one of %s", strings.Join(SecretFileTypes, ", "))
	}
	for _, kv := range append(append(KVList{}, s.EnvVars...), s.SecretRefs...) {
		if !kv.Complete() {
			return invalid("%v", ErrEmptyKV)
		}
	}
	return nil
}

func tokenize(field, value string) ([]string, error) {
	args, err := shellwords.Parse(value)
	if err != nil {
		return nil, invalid("%s: %v", field, err)
	}
	if args == nil {
		args = []string{}
	}
	return args, nil
}

// Request validates the job and builds the wire form.
func (s JobSpec) Request() (JobRequest, error) {
	if err := s.Validate(); err != nil {
		return JobRequest{}, err
	}
	s = s.withDefaults()

	run, err := tokenize("run", s.Run)
	if err != nil {
		return JobRequest{}, err
	}
	entry, err := tokenize("entrypoint", s.EntryPoint)
	if err != nil {
		return JobRequest{}, err
	}

	return JobRequest{
		QName:           s.QName,
		ContainerImage:  s.ContainerImage,
		ImagePullPolicy: s.ImagePullPolicy,
		Content:         s.Content,
		EntryPoint:      entry,
		Run:             run,
		WorkingDir:      strings.TrimSpace(s.WorkingDir),
		EnvVars:         s.EnvVars.EnvStrings(),
		SecretRefs:      s.SecretRefs.SecretRefStrings(),
		SecretFileType:  s.SecretFileType,
		ContOnWarnings:  s.ContOnWarnings,
	}, nil
}

// LoadJobFile reads a YAML job description. A content_file entry is resolved
// relative to the job file and must be a gzipped tarball.
func LoadJobFile(path string) (JobSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return JobSpec{}, err
	}

	var spec JobSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return JobSpec{}, fmt.Errorf("%s: %w", path, err)
	}

	if spec.ContentFile != "" {
		contentPath := spec.ContentFile
		if !filepath.IsAbs(contentPath) {
			contentPath = filepath.Join(filepath.Dir(path), contentPath)
		}
		content, err := LoadContent(contentPath)
		if err != nil {
			return JobSpec{}, err
		}
		spec.Content = content
	}
	return spec.withDefaults(), nil
}
