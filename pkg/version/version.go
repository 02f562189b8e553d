package version

// Injected at build time via -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build identity reported on startup and by the health endpoint.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: ShortCommit(),
		BuildDate: BuildDate,
	}
}

// Fields returns the build identity as log fields.
func (i Info) Fields() map[string]any {
	return map[string]any{
		"version":    i.Version,
		"git_commit": i.GitCommit,
		"build_date": i.BuildDate,
	}
}

// ShortCommit returns the first 7 characters of the commit hash.
func ShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}
