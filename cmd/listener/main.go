// Command kaijs-listener subscribes to a configured broker and drains its
// topics into the on-disk spool (§4.1). It never touches Postgres, the
// schema catalog, or the search index — it is a pure broker-to-spool
// relay, matching the teacher's single-responsibility cmd/hermes-indexer
// entrypoint pattern.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/fedora-ci/kaijs-go/internal/config"
	"github.com/fedora-ci/kaijs-go/internal/logging"
	"github.com/fedora-ci/kaijs-go/internal/version"
	"github.com/fedora-ci/kaijs-go/pkg/broker"
	"github.com/fedora-ci/kaijs-go/pkg/broker/amqp091"
	"github.com/fedora-ci/kaijs-go/pkg/broker/amqp10"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/spool"
)

func main() {
	configPath := flag.String("config", "", "path to an optional HCL config overlay")
	flag.Parse()

	log := logging.New("listener")
	log.Info("starting kaijs-listener", "version", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	sp, err := spool.Open(cfg.SpoolDir, log)
	if err != nil {
		log.Error("open spool", "error", err)
		os.Exit(1)
	}
	defer sp.Close()

	links, err := dialLinks(context.Background(), cfg, log)
	if err != nil {
		log.Error("dial broker links", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var wg sync.WaitGroup
	exitCode := make(chan int, 1)
	for _, l := range links {
		wg.Add(1)
		go func(l broker.Link) {
			defer wg.Done()
			runLink(ctx, l, sp, cfg.Broker.ProviderName, log)
		}(l)
	}

	go livenessLoop(ctx, links, cfg.LivenessInterval, log, exitCode)

	go func() {
		wg.Wait()
		exitCode <- 0
	}()

	code := <-exitCode
	cancel()
	for _, l := range links {
		if err := l.Close(context.Background()); err != nil {
			log.Warn("close link", "error", err)
		}
	}
	os.Exit(code)
}

// dialLinks opens one broker.Link per configured topic; AMQP-1.0 queue
// addresses and AMQP-0.9.1 bindings are both inherently single-topic, so a
// listener subscribed to N topics runs N independent links sharing one
// spool.
func dialLinks(ctx context.Context, cfg *config.Config, log hclog.Logger) ([]broker.Link, error) {
	var links []broker.Link
	for _, topic := range cfg.Broker.Topics {
		switch cfg.Broker.Kind {
		case "amqp10":
			l, err := amqp10.Dial(ctx, amqp10.Config{
				URL:          cfg.Broker.URL,
				ClientCert:   cfg.Broker.ClientCert,
				ClientKey:    cfg.Broker.ClientKey,
				CACert:       cfg.Broker.CACert,
				ClientName:   cfg.Broker.ClientName,
				SubscriberID: cfg.Broker.SubscriberID,
				Topic:        topic,
				Selector:     cfg.Broker.Selector,
				PrefetchSize: cfg.Broker.PrefetchSize,
			})
			if err != nil {
				return nil, fmt.Errorf("amqp10 dial topic %q: %w", topic, err)
			}
			links = append(links, l)
		case "amqp091":
			l, err := amqp091.Dial(ctx, amqp091.Config{
				URL:        cfg.Broker.URL,
				ClientCert: cfg.Broker.ClientCert,
				ClientKey:  cfg.Broker.ClientKey,
				CACert:     cfg.Broker.CACert,
				Exchange:   cfg.Broker.SubscriberID,
				Topic:      topic,
			})
			if err != nil {
				return nil, fmt.Errorf("amqp091 dial topic %q: %w", topic, err)
			}
			links = append(links, l)
		default:
			return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
		}
	}
	return links, nil
}

// runLink implements §4.1's receive-decode-push-ack loop for a single
// link: a JSON parse failure is acked and dropped immediately (poison-pill
// avoidance); otherwise the envelope is appended to the spool and only
// then acknowledged.
func runLink(ctx context.Context, l broker.Link, sp *spool.Spool, providerName string, log hclog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := l.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("receive failed", "error", err)
			return
		}

		body, derr := envelope.DecodeBody(msg.Body)
		if derr != nil {
			log.Warn("dropping malformed JSON message", "topic", msg.Topic, "error", derr)
			if aerr := l.Accept(ctx, msg); aerr != nil {
				log.Error("ack malformed message", "error", aerr)
			}
			continue
		}

		env := envelope.New(msg.MsgID, msg.Topic, providerName, msg.ArrivedAt, headerTimestamp(msg.Headers), body, msg.Headers)
		if err := sp.Push(env); err != nil {
			log.Error("spool push failed", "error", err)
			continue
		}
		if err := l.Accept(ctx, msg); err != nil {
			log.Error("ack failed after spool push", "error", err)
		}
	}
}

func headerTimestamp(headers map[string]string) *int64 {
	raw, ok := headers["timestamp"]
	if !ok {
		return nil
	}
	var ts int64
	if _, err := fmt.Sscanf(raw, "%d", &ts); err != nil {
		return nil
	}
	return &ts
}

// livenessLoop emits the per-minute status snapshot §4.1 requires and
// exits the process non-zero the moment any link reports unhealthy.
func livenessLoop(ctx context.Context, links []broker.Link, interval time.Duration, log hclog.Logger, exitCode chan<- int) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, l := range links {
				st := l.Status()
				log.Info("link status", "index", i, "queued", st.Queued, "consumed", st.Consumed,
					"open_local", st.OpenLocal, "open_remote", st.OpenRemote, "closed", st.Closed)
				if !st.Healthy() {
					log.Error("link unhealthy, exiting", "index", i)
					select {
					case exitCode <- 1:
					default:
					}
					return
				}
			}
		}
	}
}
