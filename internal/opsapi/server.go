package opsapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Start listens on addr and serves h in the background. The returned
// function shuts the server down gracefully.
func Start(addr string, h http.Handler, log logrus.FieldLogger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("ops http server stopped")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("ops http server listening")
	return srv.Shutdown, nil
}
