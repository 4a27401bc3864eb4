package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arena-core/internal/config"
	"arena-core/internal/game"
	"arena-core/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables only")
	}

	srvCfg := config.ServerFromEnv()
	gameCfg := config.GameFromEnv()

	grid, mapHash := game.BuildMap(gameCfg.MapName)
	tunes := game.NewTuneTable(game.DefaultTunings())
	state := game.NewState(grid, tunes, game.Options{
		MapName:             gameCfg.MapName,
		MaxIngame:           gameCfg.MaxIngame,
		FriendlyFire:        gameCfg.FriendlyFire,
		Sided:               gameCfg.Sided,
		ScoreLimit:          int64(gameCfg.ScoreLimit),
		TimeLimitSecs:       gameCfg.TimeLimitSecs,
		AutoSideBalanceSecs: gameCfg.AutoSideBalanceSecs,
	}, uint64(time.Now().UnixNano()))

	sv := server.New(srvCfg, state, gameCfg.MapName, mapHash)
	router := server.NewRouter(sv)

	httpSrv := &http.Server{Addr: srvCfg.ListenAddr, Handler: router}
	go func() {
		log.Printf("listening on %s (ops on the same router)", srvCfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listener failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go sv.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
}
