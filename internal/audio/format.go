package audio

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Container format tags.
const (
	FormatWAV     = "wav"
	FormatMP3     = "mp3"
	FormatOGG     = "ogg"
	FormatFLAC    = "flac"
	FormatWebM    = "webm"
	FormatM4A     = "m4a"
	FormatAAC     = "aac"
	FormatUnknown = "unknown"
)

var byExtension = map[string]string{
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".mp3":  FormatMP3,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".opus": FormatOGG,
	".flac": FormatFLAC,
	".webm": FormatWebM,
	".m4a":  FormatM4A,
	".mp4":  FormatM4A,
	".aac":  FormatAAC,
}

var byContentType = map[string]string{
	"audio/wav":       FormatWAV,
	"audio/x-wav":     FormatWAV,
	"audio/wave":      FormatWAV,
	"audio/vnd.wave":  FormatWAV,
	"audio/mpeg":      FormatMP3,
	"audio/mp3":       FormatMP3,
	"audio/ogg":       FormatOGG,
	"application/ogg": FormatOGG,
	"audio/flac":      FormatFLAC,
	"audio/x-flac":    FormatFLAC,
	"audio/webm":      FormatWebM,
	"video/webm":      FormatWebM,
	"audio/mp4":       FormatM4A,
	"audio/x-m4a":     FormatM4A,
	"audio/aac":       FormatAAC,
	"audio/aacp":      FormatAAC,
}

// DetectFormat sniffs the container from magic bytes. contentType and name
// are fallbacks for payloads the sniffer cannot place (e.g. a headerless
// Icecast mp3 stream cut mid-frame).
func DetectFormat(data []byte, contentType, name string) string {
	if len(data) > 0 {
		m := mimetype.Detect(data)
		for ; m != nil; m = m.Parent() {
			if f, ok := byExtension[m.Extension()]; ok {
				return f
			}
		}
	}
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if f, ok := byContentType[strings.ToLower(mt)]; ok {
				return f
			}
		}
	}
	if name != "" {
		if f, ok := byExtension[strings.ToLower(filepath.Ext(name))]; ok {
			return f
		}
	}
	return FormatUnknown
}

// Transcodable reports whether ffmpeg is asked to handle this format.
func Transcodable(format string) bool {
	switch format {
	case FormatMP3, FormatOGG, FormatFLAC, FormatWebM, FormatM4A, FormatAAC:
		return true
	}
	return false
}
