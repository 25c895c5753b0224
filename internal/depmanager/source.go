package depmanager

import (
	"net/url"
	"path"
	"strings"

	"tubegrab/internal/config"
	"tubegrab/internal/errs"
)

// source is one downloadable release asset and the binaries it provides.
type source struct {
	// binaries installed from the asset; the first one names the source.
	binaries []BinaryName
	arm64    string
	amd64    string
	// sumsURLs is a comma separated list of checksum files covering the asset.
	sumsURLs string
}

func (s source) name() BinaryName {
	return s.binaries[0]
}

// url returns the download URL for p. Only linux builds are published.
func (s source) url(p Platform) (string, error) {
	if p.OS != platformLinux {
		return "", errs.ErrUnsupportedPlatform
	}

	switch p.Arch {
	case archARM64:
		if s.arm64 != "" {
			return s.arm64, nil
		}
	case archAMD64:
		if s.amd64 != "" {
			return s.amd64, nil
		}
	}

	return "", errs.ErrUnsupportedPlatform
}

// asset returns the file name the asset has in its checksum file, which is the last URL segment.
func (s source) asset(p Platform) string {
	raw, err := s.url(p)
	if err != nil {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}

	return path.Base(u.Path)
}

// sources returns the release assets the application needs, in install order.
// ffprobe ships inside the ffmpeg archive.
func sources(cfg config.DepManager) []source {
	return []source{
		{
			binaries: []BinaryName{BinaryFFmpeg, BinaryFFprobe},
			arm64:    cfg.FFmpegLinuxARM64,
			amd64:    cfg.FFmpegLinuxAMD64,
			sumsURLs: cfg.FFmpegSHA256SumsURL,
		},
		{
			binaries: []BinaryName{BinaryDeno},
			arm64:    cfg.DenoLinuxARM64,
			amd64:    cfg.DenoLinuxAMD64,
			sumsURLs: cfg.DenoSHA256SumsURL,
		},
		{
			binaries: []BinaryName{BinaryYTdlp},
			arm64:    cfg.YTdlpLinuxARM64,
			amd64:    cfg.YTdlpLinuxAMD64,
			sumsURLs: cfg.YTdlpSHA256SumsURL,
		},
	}
}

func splitURLs(raw string) []string {
	var out []string

	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
