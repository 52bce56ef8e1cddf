package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/app"
	"github.com/ordenio/pedidos/internal/config"
	"github.com/ordenio/pedidos/internal/version"
)

func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

func main() {
	setupLogger()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to yaml config (fallback: PEDIDOS_CONFIG)")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("PEDIDOS_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"metrics_addr": cfg.App.MetricsAddr,
		"version":      version.String(),
	}).Info("запускаем PedidoService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("PedidoService остановлен")
}
