// Package apiserver is the operator surface of the schedule daemon:
// latest domain statuses and on-demand run triggers.
package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/asoos/domain-sync/pkg/db"
	"github.com/asoos/domain-sync/pkg/scheduler"
	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type apiServer struct {
	ctx  context.Context
	log  *logrus.Entry
	port int
}

func NewAPIServer(ctx context.Context, log *logrus.Entry, port int) *apiServer {
	return &apiServer{
		ctx:  ctx,
		log:  log,
		port: port,
	}
}

// Start serves until the server's context is cancelled, then shuts down
// gracefully. tokenHash is the bcrypt hash admin requests must match.
func (a *apiServer) Start(database db.Database, sched *scheduler.Scheduler, tokenHash string) error {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(a.log))
	h := newHandler(database, sched)

	router.Path("/").HandlerFunc(h.root)
	router.Path("/healthz").HandlerFunc(h.root)

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(tokenAuthMiddleware(tokenHash))

	api.Path("/domains").Methods("GET").HandlerFunc(h.listDomains)
	api.Path("/domains/{fqdn}").Methods("GET").HandlerFunc(h.getDomain)

	// on-demand triggers, coalesced with any run already in flight
	api.Path("/reconcile").Methods("POST").HandlerFunc(h.runNow("reconcile"))
	api.Path("/verify").Methods("POST").HandlerFunc(h.runNow("verify"))

	// Note: this allows not found urls to be logged via the middleware
	// It **HAS** to be defined after all other paths are defined.
	router.NotFoundHandler = router.NewRoute().HandlerFunc(http.NotFound).GetHandler()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: ghandlers.CORS()(router),
	}

	go func() {
		a.log.WithField("port", a.port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("listen: %s\n", err)
		}
	}()

	<-a.ctx.Done()

	a.log.Info("shutting down the api server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("unable to shutdown the api server gracefully")
		return err
	}

	return nil
}
