// commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gewnthar/areasync/checkpoint"
	"github.com/gewnthar/areasync/config"
	"github.com/gewnthar/areasync/database"
	"github.com/gewnthar/areasync/handlers"
	"github.com/gewnthar/areasync/logging"
	"github.com/gewnthar/areasync/scraper"
	"github.com/gewnthar/areasync/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Walk the district tree and save it, resuming from the checkpoint if one exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), *root)
		},
	}
}

func runIngest(ctx context.Context, opts rootOptions) error {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Paths.LogFile, cfg.LogLevel, os.Stdout)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.WithField("component", "ingest")

	log.WithFields(logrus.Fields{
		"db":        cfg.Database.DBName,
		"table":     cfg.Database.Table,
		"mem_limit": humanize.IBytes(cfg.MemoryLimitBytes()),
	}).Info("Configuration loaded")

	db, err := database.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Error("Database connection failed")
		return err
	}
	defer db.Close()
	log.Info("Database connected")

	store := database.NewAreaStore(db, cfg.Database.Table)
	index := services.NewCodeIndex()
	n, err := index.Preload(ctx, store)
	if err != nil {
		log.WithError(err).Error("Failed to load existing codes")
		return err
	}
	log.Infof("Loaded %s existing codes", humanize.Comma(int64(n)))

	guard := services.NewMemoryGuard(cfg.MemoryLimitBytes(), index, logger.WithField("component", "memory"))
	saver := services.NewBatchSaver(store, index, guard, logger.WithField("component", "batch"))
	client := scraper.NewDistrictClient(cfg.API, logger.WithField("component", "api"))
	checkpoints := checkpoint.NewFileStore(cfg.Paths.ProgressFile)

	engine := services.NewEngine(client, saver, checkpoints, guard, log, services.EngineOptions{
		Delay:                   cfg.API.Delay,
		Municipalities:          cfg.Traversal.Municipalities,
		MunicipalDistrictName:   cfg.Traversal.MunicipalDistrictName,
		MunicipalDistrictSuffix: cfg.Traversal.MunicipalDistrictSuffix,
	})

	if cfg.Status.Addr != "" {
		status := handlers.NewStatusHandler(store, engine.Progress(), checkpoints, logger.WithField("component", "status"))
		srv := &http.Server{Addr: cfg.Status.Addr, Handler: status.Routes(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Infof("Status server listening on %s", cfg.Status.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	start := time.Now()
	_, err = engine.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.WithField("progress_file", cfg.Paths.ProgressFile).Warn("Interrupted, checkpoint kept for the next run")
		return err
	default:
		log.WithError(err).Error("Run aborted, checkpoint kept for the next run")
		return err
	}

	log.WithFields(logrus.Fields{
		"elapsed":     services.FormatElapsed(time.Since(start)),
		"reliefs":     guard.Reliefs(),
		"index_codes": index.Len(),
		"heap":        humanize.IBytes(logging.HeapInUse()),
	}).Info("Done")
	return nil
}

func newSchemaCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the area table if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(root.ConfigPath)
			if err != nil {
				return err
			}
			db, err := database.OpenDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.EnsureSchema(cmd.Context(), db, cfg.Database.Table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "table %s ready\n", cfg.Database.Table)
			return nil
		},
	}
}

func newCheckpointCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or remove the resume checkpoint",
	}

	store := func() (*checkpoint.FileStore, error) {
		cfg, err := config.LoadConfig(root.ConfigPath)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewFileStore(cfg.Paths.ProgressFile), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current checkpoint as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			cp, err := s.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cp == nil {
				fmt.Fprintln(out, "no checkpoint")
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(cp); err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s\n", humanize.Time(cp.SavedAt()))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the checkpoint so the next run starts from the top",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			if err := s.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "checkpoint cleared")
			return nil
		},
	})
	return cmd
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export --out <path>",
		Short: "Write every live area row to a CSV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			cfg, err := config.LoadConfig(root.ConfigPath)
			if err != nil {
				return err
			}
			db, err := database.OpenDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			n, err := services.ExportCSV(cmd.Context(), database.NewAreaStore(db, cfg.Database.Table), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s rows to %s\n", humanize.Comma(int64(n)), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination CSV file")
	return cmd
}
