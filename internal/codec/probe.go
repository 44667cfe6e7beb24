package codec

import (
	"fmt"

	vidio "github.com/AlexEidt/Vidio"
)

// Metadata describes the probed source media.
type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Codec    string  `json:"codec"`
}

// Prober reads container metadata for a local media file.
type Prober interface {
	Probe(path string) (Metadata, error)
}

// VidioProber reads metadata through ffprobe via Vidio. Vidio always runs
// the ffprobe found on PATH; the ffprobe_path setting does not reach it.
type VidioProber struct{}

// Probe opens the file for metadata only; no frames are decoded.
func (VidioProber) Probe(path string) (Metadata, error) {
	video, err := vidio.NewVideo(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("probe %s: %w", path, err)
	}
	defer video.Close()

	return Metadata{
		Duration: video.Duration(),
		Width:    video.Width(),
		Height:   video.Height(),
		FPS:      video.FPS(),
		Codec:    video.Codec(),
	}, nil
}
