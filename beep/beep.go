// Package beep plays the short cues that frame a voice capture.
package beep

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const (
	sampleRate = 44100

	// capture started: high, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// capture finished: lower, a little longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// microphone or transcription failure: low double beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

type Cue int

const (
	CueStart Cue = iota
	CueEnd
	CueError
)

var (
	cues     map[Cue][]byte
	cuesOnce sync.Once
)

func initCues() {
	cues = map[Cue][]byte{
		CueStart: pcmBytes(generateTick(sampleRate, startFreq, 0.05, startVolume, startDecay)),
		CueEnd:   pcmBytes(generateTick(sampleRate, endFreq, 0.08, endVolume, endDecay)),
		CueError: pcmBytes(generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)),
	}
}

// generateTick renders a mono sine burst with an exponential decay.
func generateTick(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range n {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Init renders the cues ahead of the first capture.
func Init() {
	cuesOnce.Do(initCues)
}

func Play(c Cue) {
	if disabled.Load() {
		return
	}
	cuesOnce.Do(initCues)
	play(cues[c])
}

func PlayStart() { Play(CueStart) }
func PlayEnd()   { Play(CueEnd) }
func PlayError() { Play(CueError) }
