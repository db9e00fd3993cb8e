package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tiny_kv/pkg/config"
	"tiny_kv/pkg/db"
	"tiny_kv/pkg/logger"
	"tiny_kv/pkg/txn"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "driver",
		Short: "Run the tiny_kv batch scenarios against an in-memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(conf)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(conf *config.Config) error {
	log, err := logger.New(conf.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	registry := prometheus.NewRegistry()
	if conf.Metrics.Enabled && conf.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(conf.Metrics.Addr, mux); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	database := db.Open(db.WithLogger(log), db.WithRegisterer(registry), db.WithConfig(conf))
	defer database.Close()

	// Test 1: Normal Read and Write
	err = database.Batch(func(accessor *db.Accessor) error {
		return accessor.Put("HDD", []byte("Hard disk"))
	})
	if err != nil {
		return err
	}

	err = database.Batch(func(accessor *db.Accessor) error {
		return accessor.Put("HDD", []byte("Hard disk drive"))
	})
	if err != nil {
		return err
	}

	_ = database.Batch(func(accessor *db.Accessor) error {
		value, exists := accessor.Get("HDD")
		fmt.Println(exists)
		fmt.Println(value.String())
		return nil
	})

	// Test 2: Conflict
	claimed := make(chan struct{})
	attempted := make(chan struct{})
	var conflictErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := database.Batch(func(accessor *db.Accessor) error {
			if err := accessor.Put("HDD", []byte("Hard disk")); err != nil {
				return err
			}
			close(claimed)
			<-attempted
			return nil
		})
		if err != nil {
			log.Error("first writer failed", zap.Error(err))
		}
	}()

	go func() {
		defer wg.Done()
		<-claimed
		conflictErr = database.Batch(func(accessor *db.Accessor) error {
			_ = accessor.Put("SSD", []byte("Solid state drive"))
			return accessor.Put("HDD", []byte("Hard disk drive"))
		})
		close(attempted)
	}()
	wg.Wait()

	if !errors.Is(conflictErr, txn.ErrConflict) {
		return fmt.Errorf("expected a conflict, got %v", conflictErr)
	}
	fmt.Println(conflictErr)

	_ = database.Batch(func(accessor *db.Accessor) error {
		value, exists := accessor.Get("HDD")
		fmt.Println(exists)
		fmt.Println(value.String())
		_, exists = accessor.Get("SSD")
		fmt.Println(exists)
		return nil
	})

	for _, change := range database.Changes(0) {
		fmt.Printf("etag %d: %s\n", change.Etag, change.Key)
	}
	log.Info("driver finished", zap.Any("stats", database.Stats()))
	return nil
}
