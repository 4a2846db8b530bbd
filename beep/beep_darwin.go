//go:build darwin

package beep

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"murmur/dictation"
)

var (
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	cueBytes   map[dictation.Cue][]byte
	soundOnce  sync.Once
	errNoAudio = errors.New("no playback device")

	// read from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	cueBytes = make(map[dictation.Cue][]byte, len(tones))
	for cue, t := range tones {
		cueBytes[cue] = toBytes(t.samples(1, 0))
	}

	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func initOutput() { soundOnce.Do(initSound) }

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func dataCallback(out, _ []byte, frameCount uint32) {
	samples := playing.Load()
	want := frameCount * 2
	if samples == nil {
		clear(out)
		return
	}

	pos := playPos.Load()
	remaining := uint32(len(*samples)) - pos
	if remaining == 0 {
		playing.Store(nil)
		clear(out)
		return
	}
	n := min(want, remaining)
	copy(out[:n], (*samples)[pos:pos+n])
	playPos.Store(pos + n)
	clear(out[n:want])
}

func playCue(cue dictation.Cue) error {
	soundOnce.Do(initSound)
	samples := cueBytes[cue]
	if malgoCtx == nil {
		return errNoAudio
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return errNoAudio
	}
	device.Stop()
	playPos.Store(0)
	playing.Store(&samples)

	if err := device.Start(); err != nil {
		// device goes stale after sleep/wake; recreate once
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return fmt.Errorf("reinit playback device: %w", err)
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
			return fmt.Errorf("start playback device: %w", err)
		}
	}
	return nil
}
