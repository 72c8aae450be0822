package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Salta1414/sapo-cli/internal/detector"
)

const npmRegistryURL = "https://registry.npmjs.org"

// NPMClient handles communication with the npm registry
type NPMClient struct {
	baseURL    string
	httpClient *http.Client
}

// NPMPackageInfo represents package metadata from the npm registry
type NPMPackageInfo struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	DistTags    map[string]string         `json:"dist-tags"`
	Versions    map[string]NPMVersionInfo `json:"versions"`
}

// NPMVersionInfo represents a specific version's metadata
type NPMVersionInfo struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
	Dist            NPMDist           `json:"dist"`
}

// NPMDist contains distribution information
type NPMDist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// NewNPMClient creates a registry client. An empty registryURL selects the
// public npm registry.
func NewNPMClient(registryURL string, timeout time.Duration) *NPMClient {
	if registryURL == "" {
		registryURL = npmRegistryURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &NPMClient{
		baseURL: registryURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetPackageInfo fetches package metadata using the abbreviated metadata
// format, which is much smaller than the full response (critical for packages
// like @types/node that have thousands of versions).
func (c *NPMClient) GetPackageInfo(ctx context.Context, packageName string) (*NPMPackageInfo, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, packageName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", packageName, err)
	}
	// Abbreviated metadata: returns only version keys, dist-tags, and deps.
	// Reduces payload from ~20MB to ~200KB for large packages.
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package %s: %w", packageName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("package %s not found", packageName)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d for %s", resp.StatusCode, packageName)
	}

	var info NPMPackageInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse registry response for %s: %w", packageName, err)
	}

	return &info, nil
}

// GetVersionInfo fetches metadata for a specific version
func (c *NPMClient) GetVersionInfo(ctx context.Context, packageName, version string) (*NPMVersionInfo, error) {
	reqURL := fmt.Sprintf("%s/%s/%s", c.baseURL, packageName, version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s@%s: %w", packageName, version, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s@%s: %w", packageName, version, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("version %s@%s not found", packageName, version)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d for %s@%s", resp.StatusCode, packageName, version)
	}

	var info NPMVersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse registry response for %s@%s: %w", packageName, version, err)
	}

	return &info, nil
}

// GetLatestVersion returns the latest version tag by fetching only that
// specific version instead of downloading the full package metadata.
func (c *NPMClient) GetLatestVersion(ctx context.Context, packageName string) (string, error) {
	info, err := c.GetVersionInfo(ctx, packageName, "latest")
	if err != nil {
		return "", fmt.Errorf("no latest version found for %s: %w", packageName, err)
	}
	return info.Version, nil
}

// Metadata converts registry version metadata into the form detectors scan.
func (v *NPMVersionInfo) Metadata() *detector.Metadata {
	if v == nil {
		return nil
	}
	return &detector.Metadata{
		Name:         v.Name,
		Version:      v.Version,
		Description:  v.Description,
		Scripts:      v.Scripts,
		Dependencies: v.Dependencies,
	}
}

// HasInstallHooks checks whether a version declares lifecycle install scripts.
func (v *NPMVersionInfo) HasInstallHooks() bool {
	hooks := []string{"preinstall", "install", "postinstall", "preuninstall", "postuninstall"}
	for _, hook := range hooks {
		if _, exists := v.Scripts[hook]; exists {
			return true
		}
	}
	return false
}
