package ai

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const transcodeTimeout = 30 * time.Second

// ToVoiceNote re-encodes an audio file into an ogg/libopus container,
// which is the only encoding WhatsApp renders as a voice note. The source
// file is removed on success. Requires ffmpeg on PATH.
func ToVoiceNote(ctx context.Context, src string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	dst := strings.TrimSuffix(src, ".opus") + ".ogg"
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", src, "-c:a", "libopus", "-b:a", "32k", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("ffmpeg: %v: %s", err, tail(out))
	}
	os.Remove(src)
	return dst, nil
}

func tail(b []byte) string {
	const max = 300
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
