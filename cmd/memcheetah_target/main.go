// Command memcheetah_target is a process with known values to practise on.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unsafe"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// GameState is laid out like a C struct so its fields sit at fixed offsets.
type GameState struct {
	Seed   [4]byte
	Health int32
	Gold   int64
	Speed  float32
	_      uint32
	Damage float64
	Name   [32]byte
}

// state is global so the values stay at one heap address for the life of the process.
var state *GameState

func main() {
	intervalFlag := flag.Duration("interval", time.Second, "Time between state changes")
	drainFlag := flag.Bool("drain", true, "Lose one health point per interval")
	flag.Parse()

	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "target"))

	state = &GameState{Seed: [4]byte{'S', 'E', 'E', 'D'}, Health: 100, Gold: 5000, Speed: 42.5, Damage: 13.37}
	copy(state.Name[:], "PlayerOne")

	base := uintptr(unsafe.Pointer(state))
	fmt.Printf("pid     %d\n", os.Getpid())
	fmt.Printf("state   0x%x\n", base)
	fmt.Printf("health  0x%x int\n", base+unsafe.Offsetof(state.Health))
	fmt.Printf("gold    0x%x int64\n", base+unsafe.Offsetof(state.Gold))
	fmt.Printf("speed   0x%x float\n", base+unsafe.Offsetof(state.Speed))
	fmt.Printf("damage  0x%x double\n", base+unsafe.Offsetof(state.Damage))
	fmt.Printf("name    0x%x string\n", base+unsafe.Offsetof(state.Name))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*intervalFlag)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infoln("exiting")
			return
		case <-ticker.C:
			if *drainFlag && state.Health > 0 {
				state.Health--
			}
			state.Gold += 10
			log.Infoln(fmt.Sprintf("health=%d gold=%d speed=%.2f damage=%.2f name=%s",
				state.Health, state.Gold, state.Speed, state.Damage, cString(state.Name[:])))
		}
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
