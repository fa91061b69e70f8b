// Command igord runs the distributed OS-image test-execution daemon: it
// loads its configuration, wires the event publisher and hook runner into
// the job lifecycle, starts the Orchestrator and serves the HTTP control
// surface until signaled to stop.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fabiand/igor/internal/api"
	"github.com/fabiand/igor/internal/config"
	"github.com/fabiand/igor/internal/events"
	"github.com/fabiand/igor/internal/hooks"
	"github.com/fabiand/igor/internal/inventory"
	"github.com/fabiand/igor/internal/job"
	"github.com/fabiand/igor/internal/jobcenter"
	"github.com/fabiand/igor/pkg/log"
)

// eventHookRunner fans a lifecycle hook out to both the configured script
// directory and the event publisher, so a single job.HookRunner satisfies
// both collaborators the way spec.md §4.7 describes them firing together.
type eventHookRunner struct {
	scripts *hooks.Runner
	publish events.Publisher
}

func (r eventHookRunner) Run(hook job.HookName, cookie string) {
	r.scripts.Run(hook, cookie)
	if err := r.publish.Publish(string(hook), cookie); err != nil {
		log.Warnf("igord: publish event %s for %s: %v", hook, cookie, err)
	}
}

func newPublisher(cfg config.EventsConfig) events.Publisher {
	switch cfg.Driver {
	case "nats":
		p, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			log.Abortf("igord: connect NATS publisher: %v", err)
		}
		return p
	case "tcp":
		p, err := events.NewTCPBroadcaster(cfg.TCPAddress)
		if err != nil {
			log.Abortf("igord: start TCP event broadcaster: %v", err)
		}
		return p
	default:
		return events.Noop{}
	}
}

func main() {
	configPath := flag.String("config", "/etc/igord/config.json", "path to igord's JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Abortf("igord: load config %s: %v", *configPath, err)
	}
	log.SetLevel(cfg.LogLevel)

	if err := os.MkdirAll(cfg.SessionRoot, 0o755); err != nil {
		log.Abortf("igord: create session root %s: %v", cfg.SessionRoot, err)
	}

	publisher := newPublisher(cfg.Events)
	scripts := hooks.New(cfg.HookDir)
	runner := eventHookRunner{scripts: scripts, publish: publisher}

	inv := inventory.New()

	center := jobcenter.New(jobcenter.Config{
		TickInterval:     cfg.PollInterval(),
		WatchdogInterval: cfg.WatchdogInterval(),
		CleanupAge:       cfg.CleanupAge(),
		MaxCleanedJobs:   cfg.MaxCleanedJobs,
		SessionRoot:      cfg.SessionRoot,
		CallbackURL: func(cookie string) string {
			return fmt.Sprintf("http://%s/testjob/%s", cfg.ListenAddress, cookie)
		},
	}, inv, runner)

	srv := &api.Server{Center: center, Inv: inv, BaseURL: "http://" + cfg.ListenAddress}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Abortf("igord: listen on %s: %v", cfg.ListenAddress, err)
	}

	httpServer := newHTTPServer(srv)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("igord: HTTP listening at %s", cfg.ListenAddress)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("igord: http server: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Infof("igord: shutting down")

	shutdown(httpServer)
	if err := center.Stop(); err != nil {
		log.Errorf("igord: stop job center: %v", err)
	}
	if err := publisher.Close(); err != nil {
		log.Errorf("igord: close event publisher: %v", err)
	}

	wg.Wait()
	log.Infof("igord: graceful shutdown complete")
}
