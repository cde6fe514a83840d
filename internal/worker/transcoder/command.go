// Package transcoder builds and runs the ffmpeg and ffprobe invocations of
// a conversion job.
package transcoder

import (
	"strconv"
	"strings"

	"av1conv/internal/media"
)

// Options describes one encode.
type Options struct {
	Input  string
	Output string
	Format media.Format
	Codec  media.Codec
	// CRF is the requested quality; zero selects the codec default.
	CRF    int
	UseGPU bool
}

type encoder struct {
	name string
	args func(crf int) []string
}

var gpuEncoders = map[media.Codec]encoder{
	media.CodecAV1:  {"av1_nvenc", nvencArgs},
	media.CodecH265: {"hevc_nvenc", nvencArgs},
	media.CodecH264: {"h264_nvenc", nvencArgs},
}

var cpuEncoders = map[media.Codec]encoder{
	media.CodecAV1: {"libsvtav1", func(crf int) []string {
		return []string{"-crf", strconv.Itoa(crf), "-preset", "6", "-pix_fmt", "yuv420p"}
	}},
	media.CodecH265: {"libx265", x26xArgs},
	media.CodecH264: {"libx264", x26xArgs},
	media.CodecVP9: {"libvpx-vp9", func(crf int) []string {
		return []string{"-crf", strconv.Itoa(crf), "-b:v", "0", "-row-mt", "1"}
	}},
}

func nvencArgs(crf int) []string {
	return []string{"-preset", "p4", "-cq", strconv.Itoa(crf), "-b:v", "0"}
}

func x26xArgs(crf int) []string {
	return []string{"-crf", strconv.Itoa(crf), "-preset", "medium", "-pix_fmt", "yuv420p"}
}

// Encoder returns the ffmpeg video encoder used for codec. VP9 has no NVENC
// encoder and always runs on the CPU.
func Encoder(codec media.Codec, useGPU bool) string {
	return pickEncoder(codec, useGPU).name
}

func pickEncoder(codec media.Codec, useGPU bool) encoder {
	if useGPU {
		if e, ok := gpuEncoders[codec]; ok {
			return e
		}
	}
	if e, ok := cpuEncoders[codec]; ok {
		return e
	}
	return cpuEncoders[media.DefaultCodec]
}

// BuildArgs returns the ffmpeg argument vector (without the binary) for o.
// Progress is reported as key=value lines on stdout.
func BuildArgs(o Options) []string {
	codec := o.Codec
	if codec == "" {
		codec = media.DefaultCodec
	}
	format := o.Format
	if format == "" {
		format = media.DefaultFormat
	}
	enc := pickEncoder(codec, o.UseGPU)
	gpu := o.UseGPU && codec.SupportsGPU()

	args := []string{"-hide_banner", "-nostats", "-y"}
	if gpu {
		args = append(args, "-hwaccel", "cuda", "-hwaccel_output_format", "cuda")
	}
	args = append(args, "-i", o.Input, "-c:v", enc.name)
	args = append(args, enc.args(codec.CRF(o.CRF))...)
	args = append(args, audioArgs(format)...)
	if format.FastStart() {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-progress", "pipe:1", o.Output)
	return args
}

func audioArgs(f media.Format) []string {
	if f == media.FormatWebM {
		return []string{"-c:a", "libopus", "-b:a", "128k", "-ar", "48000"}
	}
	return []string{"-c:a", "aac", "-b:a", "192k", "-ar", "48000"}
}

// QuoteCommand renders bin and args as a POSIX shell command line for logs.
func QuoteCommand(bin string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(bin))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=+,@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
