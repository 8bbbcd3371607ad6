// mock-hw simulates the quantizer hardware endpoint for testing the
// host without a tether. It listens on a unix socket, answers sample
// requests with a slow triangle sweep per channel, and prints the DAC
// codes the host writes back.
//
// Usage:
//
//	mock-hw -socket /tmp/cvquant_hw [-channels 4] [-trace]
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cvquant-go/pkg/driver"
	"cvquant-go/pkg/pitch"
)

// hwState generates input samples and records output codes.
type hwState struct {
	mu        sync.Mutex
	channels  int
	startTime time.Time
	codes     []uint16
	writes    uint64
}

func newHWState(channels int) *hwState {
	return &hwState{
		channels:  channels,
		startTime: time.Now(),
		codes:     make([]uint16, channels),
	}
}

// samples returns a triangle sweep across four octaves, one sweep per
// minute, each channel offset by a fifth so they stay distinct.
func (s *hwState) samples() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.startTime)
	phase := float64(elapsed%time.Minute) / float64(time.Minute)
	if phase > 0.5 {
		phase = 1 - phase
	}
	base := int32(phase * 2 * 4 * float64(pitch.Octave))

	out := make([]int32, s.channels)
	for i := range out {
		out[i] = base + int32(i)*int32(7*pitch.Semitone)
	}
	return out
}

func (s *hwState) setCodes(codes []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.codes, codes)
	s.writes++
}

func main() {
	socketPath := flag.String("socket", "/tmp/cvquant_hw", "Unix socket path")
	channels := flag.Int("channels", 4, "Channel count")
	trace := flag.Bool("trace", false, "Print every code write")
	flag.Parse()

	if *channels < 1 || *channels > driver.MaxChannels {
		fmt.Fprintf(os.Stderr, "Error: channels must be 1..%d\n", driver.MaxChannels)
		os.Exit(1)
	}

	os.Remove(*socketPath)
	listener, err := net.Listen("unix", *socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating socket: %v\n", err)
		os.Exit(1)
	}
	defer listener.Close()
	defer os.Remove(*socketPath)

	fmt.Printf("Mock hardware listening on %s (%d channels)\n", *socketPath, *channels)
	fmt.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	connCh := make(chan net.Conn, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			connCh <- conn
		}
	}()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
			return
		case conn := <-connCh:
			fmt.Println("Host connected")
			go handleConnection(conn, newHWState(*channels), *trace)
		}
	}
}

func handleConnection(conn net.Conn, state *hwState, trace bool) {
	defer conn.Close()

	for {
		err := driver.ServeFrame(conn, state.samples, func(codes []uint16) {
			state.setCodes(codes)
			if trace {
				fmt.Printf("codes: %v\n", codes)
			}
		})
		if err != nil {
			if err != io.EOF {
				fmt.Printf("Host disconnected: %v\n", err)
			} else {
				fmt.Println("Host disconnected")
			}
			return
		}
	}
}
