package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/scorchedearth/scorched/util"
)

func main() {
	cfg := newConfig()
	if err := util.InitLog(cfg.logLevel, "console"); err != nil {
		util.Fatalln("Error setting log level:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := Session{cfg: cfg}
	if err := sess.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("quit")
			return
		}
		util.Fatalln("Error:", err)
	}
}
