package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// --- Structs ---

type Frame struct {
	Number int
	Data   []byte
}

type frameJob struct {
	Number int
	Image  image.Image
}

const frameWaitTimeout = 60 * time.Second

var errSinkClosed = errors.New("video sink closed")

// videoSink PNG-encodes frames on a worker pool and writes them, in order,
// to an image2pipe stream.
type videoSink struct {
	out    io.WriteCloser
	cmd    *exec.Cmd
	jobs   chan frameJob
	frames chan Frame

	workers sync.WaitGroup
	writer  sync.WaitGroup
	next    int
	closed  bool

	mu  sync.Mutex
	err error
}

// --- Video Pipeline ---

func startVideoSink(args *Arguments, framerate float64, totalFrames int) (*videoSink, error) {
	ffmpegCmd := exec.Command("ffmpeg", "-y", "-f", "image2pipe", "-vcodec", "png", "-r", fmt.Sprintf("%f", framerate), "-i", "-", "-c:v", "libx264", "-b:v", args.Bitrate, "-pix_fmt", "yuv420p", "-r", fmt.Sprintf("%f", framerate), args.OutputFile)
	ffmpegIn, err := ffmpegCmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get ffmpeg stdin pipe: %w", err)
	}
	ffmpegCmd.Stderr = os.Stderr
	if err := ffmpegCmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := newVideoSink(ffmpegIn, args.Workers, totalFrames)
	s.cmd = ffmpegCmd
	return s, nil
}

func newVideoSink(out io.WriteCloser, workers, totalFrames int) *videoSink {
	workers = max(workers, 1)
	s := &videoSink{
		out:    out,
		jobs:   make(chan frameJob, workers*2),
		frames: make(chan Frame, workers*2),
	}
	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.encode()
	}
	s.writer.Add(1)
	go s.write(totalFrames)
	return s
}

// WriteFrame queues img as the next frame. img must not be modified after
// the call.
func (s *videoSink) WriteFrame(img image.Image) error {
	if s.closed {
		return errSinkClosed
	}
	if err := s.failure(); err != nil {
		return err
	}
	s.jobs <- frameJob{Number: s.next, Image: img}
	s.next++
	return nil
}

// Close flushes every queued frame and waits for ffmpeg to finish.
func (s *videoSink) Close() error {
	if s.closed {
		return errSinkClosed
	}
	s.closed = true
	close(s.jobs)
	s.workers.Wait()
	close(s.frames)
	s.writer.Wait()

	if s.cmd != nil {
		if err := s.cmd.Wait(); err != nil {
			s.fail(fmt.Errorf("ffmpeg command failed: %w", err))
		}
	}
	return s.failure()
}

func (s *videoSink) encode() {
	defer s.workers.Done()
	pngBuffer := new(bytes.Buffer)

	for job := range s.jobs {
		pngBuffer.Reset()
		if err := png.Encode(pngBuffer, job.Image); err != nil {
			log.Printf("Failed to encode frame %d: %v", job.Number, err)
			s.fail(fmt.Errorf("encode frame %d: %w", job.Number, err))
			continue
		}

		frameData := make([]byte, pngBuffer.Len())
		copy(frameData, pngBuffer.Bytes())

		s.frames <- Frame{Number: job.Number, Data: frameData}
	}
}

// write reorders encoded frames and streams them out. After a failure it
// keeps draining so the encoders never block.
func (s *videoSink) write(totalFrames int) {
	defer s.writer.Done()
	defer s.out.Close()

	bar := progressbar.Default(int64(totalFrames), "Encoding")
	frameBuffer := make(map[int][]byte)
	nextFrameToWrite := 0
	timeout := time.NewTimer(frameWaitTimeout)
	defer timeout.Stop()

	for {
		select {
		case frame, ok := <-s.frames:
			if !ok {
				if len(frameBuffer) > 0 {
					s.fail(fmt.Errorf("missing frame %d, %d frames left unwritten", nextFrameToWrite, len(frameBuffer)))
				}
				return
			}
			if s.failure() != nil {
				continue
			}

			frameBuffer[frame.Number] = frame.Data
			if !timeout.Stop() {
				select {
				case <-timeout.C:
				default:
				}
			}
			timeout.Reset(frameWaitTimeout)

			for {
				data, found := frameBuffer[nextFrameToWrite]
				if !found {
					break
				}
				if _, err := s.out.Write(data); err != nil {
					s.fail(fmt.Errorf("error writing frame %d to ffmpeg: %w", nextFrameToWrite, err))
					break
				}
				bar.Add(1)

				delete(frameBuffer, nextFrameToWrite)
				nextFrameToWrite++
			}

		case <-timeout.C:
			if len(frameBuffer) > 0 {
				s.fail(fmt.Errorf("timeout: stuck waiting for frame %d for over %v", nextFrameToWrite, frameWaitTimeout))
			}
			timeout.Reset(frameWaitTimeout)
		}
	}
}

func (s *videoSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *videoSink) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
