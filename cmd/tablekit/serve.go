package main

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/tablekit/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  `Serve the table editor, spreadsheet import and auth settings API until interrupted.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openEditor(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	auth, err := authService()
	if err != nil {
		return err
	}

	srv := server.New(cfg.HTTPServerConfig(), server.Deps{
		Editor:        a.editor,
		Meta:          a.meta,
		Auth:          auth,
		Store:         a.store,
		DefaultBucket: cfg.FileStore.DefaultBucket,
		Log:           log,
	})
	return srv.ListenAndServe(ctx)
}
