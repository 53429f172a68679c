package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"omnitak/internal/marti"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitWithError(err)
	}
}

// runServer wires up the Router, transport listeners, and Marti HTTP
// service, then blocks until ctx is canceled by a signal.
func runServer(parent context.Context, cfg ServerConfig) error {
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info("received interrupt, shutting down")
		cancel()
	}()

	router := NewRouter(cfg.OutboundQueueCapacity, log)
	ids := newClientIDAllocator()

	tcpAddr := fmt.Sprintf(":%d", cfg.TCPPort)
	tcpListener, err := NewListener(listenerTCP, tcpAddr, nil, router, cfg, ids, log)
	if err != nil {
		return err
	}
	log.WithField("addr", tcpAddr).Info("TCP listener bound")

	var tlsListener *Listener
	if cfg.TLSMaterial.Enabled {
		tlsConf, err := loadTLSConfig(cfg.TLSMaterial)
		if err != nil {
			return err
		}
		tlsAddr := fmt.Sprintf(":%d", cfg.TLSPort)
		tlsListener, err = NewListener(listenerTLS, tlsAddr, tlsConf, router, cfg, ids, log)
		if err != nil {
			return err
		}
		log.WithField("addr", tlsAddr).Info("TLS listener bound")
	}

	martiSrv := marti.New(router, marti.TLSStatus{
		Enabled:            cfg.TLSMaterial.Enabled,
		ClientAuthRequired: cfg.TLSMaterial.RequireClientCert,
	})
	martiSrv.Echo().GET("/metrics", echo.WrapHandler(metricsHandler()))

	errCh := make(chan error, 3)
	go func() { errCh <- tcpListener.Serve(ctx) }()
	if tlsListener != nil {
		go func() { errCh <- tlsListener.Serve(ctx) }()
	}
	martiAddr := fmt.Sprintf(":%d", cfg.MartiPort)
	go func() { errCh <- martiSrv.Run(ctx, martiAddr) }()
	log.WithField("addr", martiAddr).Info("Marti HTTP listener bound")

	select {
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
		return nil
	}
}

func newLogger(cfg ServerConfig) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logrus.NewEntry(logger)
}
