package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// maxFrameSize bounds a single decoded JPEG frame held by the scanner.
const maxFrameSize = 64 << 20

// Frame is one sampled video frame as an encoded JPEG.
type Frame struct {
	Index int
	JPEG  []byte
}

// VideoInfo is what the processor needs to know about a video before decoding it.
type VideoInfo struct {
	FPS         float64
	TotalFrames int
}

// FrameSource decodes videos into sampled frames.
type FrameSource interface {
	Probe(ctx context.Context, path string) (VideoInfo, error)
	// Frames calls fn for frames 0, interval, 2*interval, ... in order.
	// Returning an error from fn stops decoding and is returned as is.
	Frames(ctx context.Context, path string, interval int, fn func(Frame) error) error
}

// FFmpeg is a FrameSource backed by the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

type ffprobeOutput struct {
	Streams []struct {
		AvgFrameRate  string `json:"avg_frame_rate"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// Probe reads fps and frame count from container metadata, counting packets
// when the container does not record a frame count.
func (f *FFmpeg) Probe(ctx context.Context, path string) (VideoInfo, error) {
	out, err := f.probe(ctx, path, "stream=avg_frame_rate,r_frame_rate,nb_frames")
	if err != nil {
		return VideoInfo{}, err
	}

	stream := out.Streams[0]
	info := VideoInfo{FPS: parseRate(stream.AvgFrameRate)}
	if info.FPS == 0 {
		info.FPS = parseRate(stream.RFrameRate)
	}

	if n, err := strconv.Atoi(stream.NbFrames); err == nil && n > 0 {
		info.TotalFrames = n
		return info, nil
	}

	counted, err := f.probe(ctx, path, "stream=nb_read_packets", "-count_packets")
	if err != nil {
		return info, nil
	}
	if n, err := strconv.Atoi(counted.Streams[0].NbReadPackets); err == nil {
		info.TotalFrames = n
	}
	return info, nil
}

func (f *FFmpeg) probe(ctx context.Context, path, entries string, extra ...string) (*ffprobeOutput, error) {
	args := []string{"-v", "error", "-select_streams", "v:0"}
	args = append(args, extra...)
	args = append(args, "-show_entries", entries, "-of", "json", path)

	cmd := exec.CommandContext(ctx, f.FFprobePath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ffprobe %s: parse output: %w", path, err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("ffprobe %s: no video stream", path)
	}
	return &out, nil
}

// Frames pipes MJPEG out of ffmpeg and splits it on JPEG markers. The select
// filter drops unsampled frames inside ffmpeg so they are never encoded.
func (f *FFmpeg) Frames(ctx context.Context, path string, interval int, fn func(Frame) error) error {
	if interval < 1 {
		interval = 1
	}

	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", interval),
		"-vsync", "0",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	scanner.Split(SplitJPEG)

	var fnErr error
	for n := 0; scanner.Scan(); n++ {
		frame := Frame{Index: n * interval, JPEG: append([]byte(nil), scanner.Bytes()...)}
		if fnErr = fn(frame); fnErr != nil {
			break
		}
	}
	scanErr := scanner.Err()

	if fnErr != nil {
		// stop ffmpeg; its exit status no longer matters
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fnErr
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if scanErr != nil {
		return fmt.Errorf("read frames: %w", scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", path, waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// SplitJPEG is a bufio.SplitFunc that yields one complete JPEG per token,
// delimited by the SOI (FFD8) and EOI (FFD9) markers.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// parseRate turns ffprobe rationals like "30000/1001" into a float.
func parseRate(r string) float64 {
	num, den, found := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
