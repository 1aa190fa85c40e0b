package tools

import (
	"context"
	"log/slog"

	"github.com/NERVsystems/osmextract/pkg/version"
)

// VersionInfo is the get_version result
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

func handleGetVersion(ctx context.Context, _ struct{}, logger *slog.Logger) (interface{}, error) {
	info := version.Info()
	logger.Debug("reporting version", "version", info["version"])
	return VersionInfo{
		Version:   info["version"],
		Commit:    info["commit"],
		BuildDate: info["build_date"],
		GoVersion: info["go_version"],
	}, nil
}
