package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

const connectorFileName = "connector.yml"

// writeConnectorFile writes the connector parameters the tools read at startup.
func writeConnectorFile(workDir string, cfg domain.RunConfig) (string, error) {
	params := make(map[string]interface{}, len(cfg.ConnectorParams)+1)
	for k, v := range cfg.ConnectorParams {
		params[k] = v
	}
	if cfg.ConnectorURL != "" {
		if _, ok := params["url"]; !ok {
			params["url"] = cfg.ConnectorURL
		}
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal connector params: %w", err)
	}
	path := filepath.Join(workDir, connectorFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write connector file: %w", err)
	}
	return path, nil
}

// stageProfiles copies profile files into dir and returns the test names they run under.
func stageProfiles(dir string, refs []domain.ProfileRef) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	seen := make(map[string]bool)
	names := make([]string, 0, len(refs))
	for i, ref := range refs {
		base := filepath.Base(ref.Path)
		if seen[base] {
			base = fmt.Sprintf("%d_%s", i, base)
		}
		seen[base] = true

		if err := copyFile(ref.Path, filepath.Join(dir, base)); err != nil {
			return nil, fmt.Errorf("%w: profile %s: %v", domain.ErrInvalidConfig, ref.Path, err)
		}
		names = append(names, profileName(ref))
	}
	return names, nil
}

// profileName resolves the name a profile's conversations are filed under:
// the explicit name, else the file's test_name, else the file stem.
func profileName(ref domain.ProfileRef) string {
	if ref.Name != "" {
		return ref.Name
	}
	if data, err := os.ReadFile(ref.Path); err == nil {
		var head struct {
			TestName string `yaml:"test_name"`
		}
		if yaml.Unmarshal(data, &head) == nil && head.TestName != "" {
			return head.TestName
		}
	}
	base := filepath.Base(ref.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// toolEnv extends the parent environment with the API key and unbuffered output.
func toolEnv(cfg domain.RunConfig) []string {
	env := os.Environ()
	if cfg.APIKey != "" {
		env = append(env, cfg.KeyEnv()+"="+cfg.APIKey)
	}
	return append(env, "PYTHONUNBUFFERED=1")
}
