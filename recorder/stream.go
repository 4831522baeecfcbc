package recorder

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"ecochat/encoder"
)

var errFinished = errors.New("encode stream already finished")

// encodeStream turns captured PCM into encoder blocks on a background
// goroutine so the audio callback never waits on the encoder.
type encodeStream struct {
	enc        encoder.Encoder
	blockChan  chan []int16
	encodeDone chan struct{}
	sampleBuf  []int16
	bufMu      sync.Mutex
	closed     bool
	encodeErr  error
}

func newEncodeStream(format encoder.Format) (*encodeStream, error) {
	enc, err := format.New()
	if err != nil {
		return nil, err
	}

	es := &encodeStream{
		enc:        enc,
		blockChan:  make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}

	go func() {
		defer close(es.encodeDone)
		for block := range es.blockChan {
			start := time.Now()
			if err := es.enc.EncodeBlock(block); err != nil && es.encodeErr == nil {
				es.encodeErr = err
			}
			es.enc.AddEncodeTime(time.Since(start))
		}
	}()

	return es, nil
}

func (es *encodeStream) Feed(pcm []byte) {
	es.bufMu.Lock()
	defer es.bufMu.Unlock()
	if es.closed {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		es.sampleBuf = append(es.sampleBuf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	for len(es.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, es.sampleBuf[:encoder.BlockSize])
		es.sampleBuf = es.sampleBuf[encoder.BlockSize:]
		es.blockChan <- block
	}
}

// Finish flushes the partial block and returns the encoded file.
func (es *encodeStream) Finish() ([]byte, error) {
	es.bufMu.Lock()
	if es.closed {
		es.bufMu.Unlock()
		return nil, errFinished
	}
	es.closed = true
	if len(es.sampleBuf) > 0 {
		partial := make([]int16, len(es.sampleBuf))
		copy(partial, es.sampleBuf)
		es.blockChan <- partial
		es.sampleBuf = nil
	}
	close(es.blockChan)
	es.bufMu.Unlock()

	<-es.encodeDone
	if es.encodeErr != nil {
		return nil, es.encodeErr
	}
	if err := es.enc.Close(); err != nil {
		return nil, err
	}
	return es.enc.Bytes(), nil
}

func (es *encodeStream) Frames() uint64 { return es.enc.TotalFrames() }

func (es *encodeStream) EncodeTime() time.Duration { return es.enc.EncodeTime() }
