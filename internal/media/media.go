// Package media describes the output containers and video codecs av1conv
// can produce.
package media

import (
	"path"
	"strings"

	"av1conv/internal/pkg/errors"
)

// Format is an output container.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMKV  Format = "mkv"
	FormatWebM Format = "webm"
	FormatMOV  Format = "mov"
)

// DefaultFormat is used when a request leaves format empty.
const DefaultFormat = FormatMP4

var formatMIME = map[Format]string{
	FormatMP4:  "video/mp4",
	FormatMKV:  "video/x-matroska",
	FormatWebM: "video/webm",
	FormatMOV:  "video/quicktime",
}

// Formats lists the supported containers.
func Formats() []Format {
	return []Format{FormatMP4, FormatMKV, FormatWebM, FormatMOV}
}

// ParseFormat normalizes user input ("MP4", ".mkv") and rejects unknown
// containers. Empty input yields DefaultFormat.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	if s == "" {
		return DefaultFormat, nil
	}
	f := Format(s)
	if _, ok := formatMIME[f]; !ok {
		return "", errors.ValidationField("request.format", "unsupported format: "+s).
			WithField("supported", Formats())
	}
	return f, nil
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// MIME returns the content type for f, application/octet-stream when unknown.
func (f Format) MIME() string {
	if m, ok := formatMIME[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// FastStart reports whether the container benefits from moving the moov
// atom to the front.
func (f Format) FastStart() bool {
	return f == FormatMP4 || f == FormatMOV
}

// FormatFromFilename resolves the container from a file or object name,
// falling back to DefaultFormat.
func FormatFromFilename(name string) Format {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if _, ok := formatMIME[Format(ext)]; ok {
		return Format(ext)
	}
	return DefaultFormat
}

// Codec is a video codec.
type Codec string

const (
	CodecAV1  Codec = "av1"
	CodecH265 Codec = "h265"
	CodecH264 Codec = "h264"
	CodecVP9  Codec = "vp9"
)

// DefaultCodec is used when a request leaves codec empty.
const DefaultCodec = CodecAV1

var codecAliases = map[string]Codec{
	"av1":  CodecAV1,
	"h265": CodecH265,
	"hevc": CodecH265,
	"h264": CodecH264,
	"avc":  CodecH264,
	"vp9":  CodecVP9,
}

var defaultCRF = map[Codec]int{
	CodecAV1:  32,
	CodecH265: 28,
	CodecH264: 23,
	CodecVP9:  31,
}

// MaxCRF is the upper bound accepted for any codec.
const MaxCRF = 63

// ParseCodec normalizes a codec name or alias. Empty input yields
// DefaultCodec.
func ParseCodec(s string) (Codec, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultCodec, nil
	}
	c, ok := codecAliases[s]
	if !ok {
		return "", errors.ValidationField("request.codec", "unsupported codec: "+s)
	}
	return c, nil
}

// DefaultCRF is the constant-quality value used when none is requested.
func (c Codec) DefaultCRF() int {
	if v, ok := defaultCRF[c]; ok {
		return v
	}
	return defaultCRF[DefaultCodec]
}

// CRF returns requested when set, else the codec default.
func (c Codec) CRF(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.DefaultCRF()
}

// SupportsGPU reports whether an NVENC encoder exists for c.
func (c Codec) SupportsGPU() bool {
	return c != CodecVP9
}

// CheckCompatible rejects codec/container pairs ffmpeg cannot mux.
func CheckCompatible(f Format, c Codec) error {
	if f == FormatWebM && c != CodecAV1 && c != CodecVP9 {
		return errors.ValidationField("request.codec", "webm supports only av1 and vp9").
			WithField("codec", string(c))
	}
	return nil
}

// ValidateCRF checks a requested CRF. Zero means codec default.
func ValidateCRF(crf int) error {
	if crf < 0 || crf > MaxCRF {
		return errors.ValidationField("request.crf", "crf must be between 0 and 63").
			WithField("crf", crf)
	}
	return nil
}
