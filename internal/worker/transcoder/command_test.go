package transcoder

import (
	"strings"
	"testing"

	"av1conv/internal/media"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		contains []string
		absent   []string
	}{
		{
			name: "cpu av1 mp4 default crf",
			opts: Options{Format: media.FormatMP4, Codec: media.CodecAV1},
			contains: []string{
				"-c:v libsvtav1 -crf 32 -preset 6 -pix_fmt yuv420p",
				"-c:a aac -b:a 192k -ar 48000",
				"-movflags +faststart",
			},
			absent: []string{"-hwaccel"},
		},
		{
			name:     "gpu av1 custom crf",
			opts:     Options{Format: media.FormatMP4, Codec: media.CodecAV1, CRF: 30, UseGPU: true},
			contains: []string{"-hwaccel cuda -hwaccel_output_format cuda -i in", "-c:v av1_nvenc -preset p4 -cq 30 -b:v 0"},
		},
		{
			name:     "gpu h265",
			opts:     Options{Format: media.FormatMKV, Codec: media.CodecH265, UseGPU: true},
			contains: []string{"-c:v hevc_nvenc -preset p4 -cq 28 -b:v 0"},
			absent:   []string{"+faststart"},
		},
		{
			name:     "gpu h264",
			opts:     Options{Format: media.FormatMOV, Codec: media.CodecH264, UseGPU: true},
			contains: []string{"-c:v h264_nvenc -preset p4 -cq 23", "-movflags +faststart"},
		},
		{
			name:     "cpu h265",
			opts:     Options{Format: media.FormatMKV, Codec: media.CodecH265},
			contains: []string{"-c:v libx265 -crf 28 -preset medium -pix_fmt yuv420p"},
		},
		{
			name:     "cpu h264",
			opts:     Options{Format: media.FormatMP4, Codec: media.CodecH264, CRF: 18},
			contains: []string{"-c:v libx264 -crf 18 -preset medium"},
		},
		{
			name:     "vp9 ignores gpu",
			opts:     Options{Format: media.FormatWebM, Codec: media.CodecVP9, UseGPU: true},
			contains: []string{"-c:v libvpx-vp9 -crf 31 -b:v 0 -row-mt 1", "-c:a libopus -b:a 128k -ar 48000"},
			absent:   []string{"-hwaccel", "+faststart", "aac"},
		},
		{
			name:     "empty codec and format",
			opts:     Options{},
			contains: []string{"libsvtav1", "+faststart"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Input = "in"
			tt.opts.Output = "out"
			args := BuildArgs(tt.opts)
			joined := strings.Join(args, " ")

			if !strings.HasPrefix(joined, "-hide_banner -nostats -y ") {
				t.Errorf("prefix: %s", joined)
			}
			if !strings.HasSuffix(joined, "-progress pipe:1 out") {
				t.Errorf("suffix: %s", joined)
			}
			for _, c := range tt.contains {
				if !strings.Contains(joined, c) {
					t.Errorf("missing %q in %s", c, joined)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(joined, a) {
					t.Errorf("unexpected %q in %s", a, joined)
				}
			}
		})
	}
}

func TestEncoder(t *testing.T) {
	if Encoder(media.CodecVP9, true) != "libvpx-vp9" {
		t.Error("vp9 must stay on cpu")
	}
	if Encoder(media.CodecH264, true) != "h264_nvenc" {
		t.Error("h264 gpu encoder")
	}
	if Encoder(media.Codec("weird"), false) != "libsvtav1" {
		t.Error("unknown codec falls back to av1")
	}
}

func TestQuoteCommand(t *testing.T) {
	got := QuoteCommand("ffmpeg", []string{"-i", "/tmp/job 1/input", "-movflags", "+faststart", "it's", ""})
	want := `ffmpeg -i '/tmp/job 1/input' -movflags +faststart 'it'"'"'s' ''`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}
