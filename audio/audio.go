// Package audio opens microphone capture streams on PulseAudio (linux) or
// miniaudio (everything else) and delivers 16-bit mono PCM to a callback.
package audio

import "strings"

const WAVHeaderSize = 44

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether it is a Bluetooth headset,
// which usually means an 8 or 16 kHz hands-free profile.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives little-endian int16 samples.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain multiplies samples before delivery; 0 means 1.
	Gain int32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// amplify applies gain to little-endian int16 samples in place, clipping at
// the int16 range.
func amplify(data []byte, gain int32) {
	if gain <= 1 {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		s := int32(int16(uint16(data[i]) | uint16(data[i+1])<<8))
		s *= gain
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		data[i] = byte(s)
		data[i+1] = byte(s >> 8)
	}
}
