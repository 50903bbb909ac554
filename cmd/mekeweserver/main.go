package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/metakeggweb/mekeweserver/internal/config"
	"github.com/metakeggweb/mekeweserver/internal/engine"
	"github.com/metakeggweb/mekeweserver/internal/engine/fakeanalysis"
	"github.com/metakeggweb/mekeweserver/internal/httpapi"
	"github.com/metakeggweb/mekeweserver/internal/metrics"
	"github.com/metakeggweb/mekeweserver/internal/statemanager"
	"github.com/metakeggweb/mekeweserver/internal/store"
	"github.com/metakeggweb/mekeweserver/internal/worker"
)

func main() {
	var yamlPath string
	for i := 1; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--config":
			i++
			if i >= len(os.Args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			yamlPath = os.Args[i]
		case "--version", "-v":
			fmt.Println("mekeweserver dev")
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", os.Args[i])
			os.Exit(1)
		}
	}

	cfg, err := config.Load(yamlPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[mekeweserver] ", log.LstdFlags)

	var st store.Store
	if cfg.RedisAddr != "" {
		st = store.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		logger.Printf("using redis state store at %s", cfg.RedisAddr)
	} else {
		st = store.NewMemStore()
		logger.Printf("using in-process state store (no redis_addr configured)")
	}

	if err := st.Ping(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "state store unreachable: %v\n", err)
		os.Exit(1)
	}

	m := metrics.New()
	sm := statemanager.New(st, cfg, logger, m)

	// The opaque bioinformatics computation is an out-of-scope collaborator;
	// fakeanalysis stands in until a real MetaKEGG engine binding is wired.
	adapter := engine.New(&fakeanalysis.Engine{}, sm, cfg.PipelineRunsCacheDir)
	w := worker.New(sm, st, adapter, cfg, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Reconcile(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "startup reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Printf("maintenance worker stopped: %v", err)
			os.Exit(1)
		}
	}()

	srv := httpapi.New(sm, st, cfg, m, logger)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
