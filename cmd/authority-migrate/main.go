package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"os"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/tidemark-dev/authority/pkg/authority"
	"github.com/tidemark-dev/authority/pkg/observability"
)

func main() {
	// Parse command line flags
	postgresURL := flag.String("postgres-url", os.Getenv("AUTHORITY_POSTGRES_URL"), "PostgreSQL connection URL")
	adminsFile := flag.String("admins-file", "", "YAML file with the legacy admin allow-list")
	dryRun := flag.Bool("dry-run", false, "Report what would be migrated without writing")
	runMigrations := flag.Bool("run-migrations", true, "Apply schema migrations before migrating principals")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *postgresURL == "" {
		log.Fatal("A PostgreSQL URL is required (-postgres-url or AUTHORITY_POSTGRES_URL)")
	}
	if *adminsFile == "" {
		log.Fatal("An admin allow-list file is required (-admins-file)")
	}

	legacy, err := authority.LoadLegacyAdmins(*adminsFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load legacy admin list")
	}
	log.WithField("count", len(legacy.Principals())).Info("Legacy admin allow-list loaded")

	db, err := sql.Open("postgres", *postgresURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("Database not reachable")
	}

	if *runMigrations && !*dryRun {
		if err := authority.RunMigrations(ctx, db); err != nil {
			log.WithError(err).Fatal("Failed to apply schema migrations")
		}
		log.Debug("Schema migrations applied")
	}

	engine := authority.NewEngine(
		authority.NewPostgresStore(db),
		authority.WithLegacyAdmins(legacy),
		authority.WithLogger(observability.NewLogger(observability.WarnLevel, os.Stderr)),
	)

	var opts []authority.MigratorOption
	if *dryRun {
		opts = append(opts, authority.WithDryRun())
		log.Info("Dry run: nothing will be written")
	}

	report := authority.NewMigrator(engine, legacy, opts...).Run(ctx)

	log.WithFields(logrus.Fields{
		"migrated": len(report.Migrated),
		"skipped":  len(report.Skipped),
		"errors":   len(report.Errors),
	}).Info("Migration finished")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.WithError(err).Fatal("Failed to write report")
	}

	if len(report.Errors) > 0 {
		for _, e := range report.Errors {
			log.WithField("principal", e.Principal).Error(e.Error)
		}
		os.Exit(1)
	}
}
