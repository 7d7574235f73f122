package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/koustreak/tablekit/internal/authconfig"
	"github.com/koustreak/tablekit/internal/database/postgres"
	"github.com/koustreak/tablekit/internal/editor"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/filestore"
	"github.com/koustreak/tablekit/internal/filestore/minio"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/koustreak/tablekit/internal/spreadsheet"
	"github.com/koustreak/tablekit/internal/telemetry"
)

// app holds the services a command needs. Fields a command did not ask
// for stay nil.
type app struct {
	db      *postgres.Driver
	meta    *pgmeta.Client
	editor  *editor.Editor
	tracker telemetry.Tracker
	store   filestore.Store
}

// openEditor connects to the database and builds the editor.
func openEditor(ctx context.Context) (*app, error) {
	if cfg.Database.DSN == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "database dsn is required (TABLEKIT_DATABASE_DSN)")
	}
	db, err := postgres.New(ctx, cfg.DriverConfig())
	if err != nil {
		return nil, err
	}

	a := &app{db: db, tracker: telemetry.Nop()}
	if cfg.Telemetry.Enabled {
		a.tracker = telemetry.NewQueue(telemetry.NewHTTPSink(cfg.Telemetry.Endpoint, cfg.Telemetry.Timeout), cfg.Telemetry.QueueSize, log)
	}

	opts := cfg.EditorOptions()
	opts.OnProgress = func(done, total int64) {
		log.Step("import_progress", map[string]any{"done": done, "total": total})
	}
	a.meta = pgmeta.New(db, pgmeta.WithPublication(opts.Publication))
	a.editor = editor.New(db, a.meta, spreadsheet.NewImporter(db, cfg.ImportOptions()), a.tracker, opts)

	if sc := cfg.ObjectStoreConfig(); sc != nil {
		store, err := openStore(ctx, sc)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

func openStore(ctx context.Context, sc *filestore.Config) (filestore.Store, error) {
	d, err := minio.New(ctx, sc)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (a *app) close() {
	if a.tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracker.Close(ctx); err != nil {
			log.WarnWith("telemetry not flushed", err, nil)
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// authService builds the auth settings service, or returns nil when the
// auth API is not configured.
func authService() (*authconfig.Service, error) {
	if cfg.Auth.BaseURL == "" {
		return nil, nil
	}
	client, err := authconfig.NewClient(cfg.AuthClientConfig())
	if err != nil {
		return nil, err
	}
	return authconfig.NewService(client), nil
}

// parseTableRef reads "schema.table" or a bare table in public.
func parseTableRef(s string) (pgmeta.TableRef, error) {
	schema, name, ok := strings.Cut(s, ".")
	if !ok {
		schema, name = "public", s
	}
	if schema == "" || name == "" {
		return pgmeta.TableRef{}, errs.Newf(errs.ErrKindInvalidInput, "table %q must be schema.table or table", s)
	}
	return pgmeta.TableRef{Schema: schema, Name: name}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
