package otoaudio

import (
	"errors"
	"io"
	"sync"
	"time"
)

// bytesPerFrame is one 16-bit stereo sample frame.
const bytesPerFrame = 4

// pcmSource is a decoded 16-bit stereo stream, as produced by go-mp3.
type pcmSource interface {
	io.ReadSeeker
	Length() int64
}

// loopStream feeds oto from a decoded source, rewinding at the end when looping.
// It tracks how many bytes of the current pass were read.
type loopStream struct {
	src pcmSource

	mu     sync.Mutex
	loop   bool
	pos    int64
	ended  bool
	length int64
}

func newLoopStream(src pcmSource) *loopStream {
	return &loopStream{src: src, length: src.Length()}
}

// Read implements io.Reader.
func (s *loopStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		n, err := s.src.Read(p)
		s.pos += int64(n)

		if errors.Is(err, io.EOF) {
			if !s.loop || s.length <= 0 {
				s.ended = true
				return n, io.EOF
			}
			if _, seekErr := s.src.Seek(0, io.SeekStart); seekErr != nil {
				return n, seekErr
			}
			s.pos = 0
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, err
	}
}

// Seek implements io.Seeker. Offsets are aligned down to a whole frame.
func (s *loopStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if whence == io.SeekStart {
		offset -= offset % bytesPerFrame
	}

	pos, err := s.src.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = pos
	s.ended = false
	return pos, nil
}

func (s *loopStream) setLoop(loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = loop
}

// position returns the read offset of the current pass and whether the source ended.
func (s *loopStream) position() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.ended
}

// bytesToDuration converts a byte count of 16-bit stereo PCM to a duration.
func bytesToDuration(n int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	frames := n / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// durationToBytes converts a duration to a frame-aligned byte offset.
func durationToBytes(d time.Duration, sampleRate int) int64 {
	frames := int64(d) * int64(sampleRate) / int64(time.Second)
	return frames * bytesPerFrame
}

// playedBytes is the audible position: read bytes minus what oto still buffers,
// wrapped into the track for looping streams.
func playedBytes(read int64, buffered int, length int64, loop bool) int64 {
	played := read - int64(buffered)
	if played >= 0 {
		return played
	}
	if loop && length > 0 {
		return (played%length + length) % length
	}
	return 0
}
