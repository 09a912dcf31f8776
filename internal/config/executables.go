package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrExecutableNotFound is returned when a tool cannot be located.
var ErrExecutableNotFound = errors.New("executable not found")

// Environment variables consulted when no explicit path is configured.
const (
	FFmpegEnv  = "FFMPEG_PATH"
	FFprobeEnv = "FFPROBE_PATH"
)

// FFmpeg resolves the ffmpeg executable: configured path, then $FFMPEG_PATH,
// then PATH.
func (c *Config) FFmpeg() (string, error) {
	return ResolveExecutable(c.FFmpegPath, FFmpegEnv, "ffmpeg")
}

// FFprobe resolves the ffprobe executable like [Config.FFmpeg].
func (c *Config) FFprobe() (string, error) {
	return ResolveExecutable(c.FFprobePath, FFprobeEnv, "ffprobe")
}

// ResolveExecutable returns the first existing candidate among configured,
// the value of envVar, and name looked up on PATH. A configured or
// environment path that does not exist is an error rather than a fallthrough,
// so a typo never silently picks up a different binary.
func ResolveExecutable(configured, envVar, name string) (string, error) {
	if configured != "" {
		return checkFile(configured)
	}
	if p := os.Getenv(envVar); p != "" {
		return checkFile(p)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s not in PATH", ErrExecutableNotFound, name)
	}
	return p, nil
}

func checkFile(p string) (string, error) {
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, p)
	}
	return p, nil
}
