package main

import (
	"log"
	"math/rand"
	"time"

	"github.com/joho/godotenv"

	"arena-core/internal/client"
	"arena-core/internal/config"
	"arena-core/internal/game"
	"arena-core/internal/input"
	"arena-core/internal/protocol"
)

// Headless client: joins a server, runs the full prediction loop and logs
// the render state. The rendering backend plugs in where RenderState is
// consumed.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables only")
	}
	cfg := config.ClientFromEnv()

	tr, err := client.Dial(cfg.ServerAddr)
	if err != nil {
		log.Fatalf("connect to %s: %v", cfg.ServerAddr, err)
	}
	defer tr.Close()

	// The local simulation mirrors the server's map once ServerInfo names
	// it; start from the default.
	grid, _ := game.BuildMap("dm1")
	tunes := game.NewTuneTable(game.DefaultTunings())
	state := game.NewState(grid, tunes, game.DefaultOptions(), uint64(time.Now().UnixNano()))

	c := client.New(cfg, state, tr)

	// Transport callbacks queue here and drain at the top of each frame.
	msgs := make(chan func(), 256)
	go func() {
		err := tr.Receive(c, func(fn func()) { msgs <- fn }, nil, func(info protocol.MsgSvServerInfo) {
			log.Printf("server info: map=%s mod=%s", info.Map, info.GameMod)
		})
		log.Printf("connection closed: %v", err)
	}()

	c.SendReady(rand.Uint64(), []protocol.LocalPlayer{
		{ID: 0, Info: protocol.CharacterInfo{Name: cfg.Name}},
	})

	// A trivial input source that walks right and hooks periodically.
	frame := time.NewTicker(time.Second / 120)
	defer frame.Stop()
	start := time.Now()
	for now := range frame.C {
		for {
			select {
			case fn := <-msgs:
				fn()
				continue
			default:
			}
			break
		}
		in := input.CharacterInput{Dir: 1, CursorX: 256}
		if int(now.Sub(start).Seconds())%4 == 0 {
			in.Hook = true
		}
		c.Frame(now, map[uint64]input.CharacterInput{0: in})
		if state.MonotonicTick()%game.TicksPerSecond == 0 {
			rs := c.RenderState(now)
			if len(rs.Chars) > 0 {
				log.Printf("tick %d: %d chars, first at (%.1f, %.1f)",
					rs.Tick, len(rs.Chars), rs.Chars[0].X, rs.Chars[0].Y)
			}
		}
	}
}
