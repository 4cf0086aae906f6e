package updater

const (
	// GitHub repository
	RepoOwner = "sebastianrcnt"
	RepoName  = "learnus-bot"
)

// Config holds the updater configuration
type Config struct {
	Owner          string
	Repo           string
	CurrentVersion string
}

// DefaultConfig returns the configuration for the released binary
func DefaultConfig(version string) *Config {
	return &Config{
		Owner:          RepoOwner,
		Repo:           RepoName,
		CurrentVersion: version,
	}
}

// Slug returns "owner/repo".
func (c *Config) Slug() string {
	return c.Owner + "/" + c.Repo
}
