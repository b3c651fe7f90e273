package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"thirdcoast.systems/sonicstream/internal/toolexec"
)

// ThumbnailExtensions are the image formats yt-dlp may write, in lookup order.
var ThumbnailExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// SourceBase is the file stem DownloadAudio writes into destDir.
const SourceBase = "source"

// Download lists the files DownloadAudio produced.
type Download struct {
	AudioPath string
	// ThumbnailPath is empty when the source had no thumbnail.
	ThumbnailPath string
}

// DownloadAudio extracts the best audio as mp3 plus the thumbnail into
// destDir using a fixed output template:
//
//	<destDir>/source.mp3
//	<destDir>/source.<jpg|jpeg|png|webp>
func (c *Client) DownloadAudio(ctx context.Context, url string, destDir string) (*Download, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return nil, fmt.Errorf("ytdlp: destDir is required")
	}

	tmpl := filepath.Join(destDir, SourceBase+".%(ext)s")
	audio := filepath.Join(destDir, SourceBase+".mp3")

	args := []string{
		"-o", tmpl,
		"--no-playlist",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--write-thumbnail",
		"--newline",
		"--no-colors",
		"--no-part",
		"--",
		url,
	}

	if _, err := c.exec(ctx, toolexec.Contract{Paths: []string{audio}}, args...); err != nil {
		return nil, err
	}

	return &Download{AudioPath: audio, ThumbnailPath: FindThumbnail(destDir, SourceBase)}, nil
}

// FindThumbnail returns the first <dir>/<base><ext> that exists for the known
// thumbnail extensions, or "".
func FindThumbnail(dir, base string) string {
	for _, ext := range ThumbnailExtensions {
		p := filepath.Join(dir, base+ext)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p
		}
	}
	return ""
}
