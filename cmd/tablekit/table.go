package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/tablekit/internal/editor"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/filestore"
	"github.com/koustreak/tablekit/internal/spreadsheet"
)

var (
	draftFile  string
	importPath string
	objectLoc  string
	schemaName string
	maxRows    int
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Create, inspect and fill tables",
}

var tableListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tables of a schema",
	Args:  cobra.NoArgs,
	RunE:  runTableList,
}

var tableShowCmd = &cobra.Command{
	Use:   "show <schema.table>",
	Short: "Print a table as an editable draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runTableShow,
}

var tableCreateCmd = &cobra.Command{
	Use:   "create -f draft.yaml",
	Short: "Create a table from a draft",
	Long: `Create a table, its columns, primary key and foreign keys from a YAML draft.
With --import or --object the spreadsheet's rows are imported once the table exists.`,
	Args: cobra.NoArgs,
	RunE: runTableCreate,
}

var tableImportCmd = &cobra.Command{
	Use:   "import <schema.table>",
	Short: "Import a CSV or TSV file into an existing table",
	Args:  cobra.ExactArgs(1),
	RunE:  runTableImport,
}

var tableInferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Propose column types for a spreadsheet",
	Args:  cobra.NoArgs,
	RunE:  runTableInfer,
}

func init() {
	tableListCmd.Flags().StringVar(&schemaName, "schema", "public", "Schema to list")

	tableCreateCmd.Flags().StringVarP(&draftFile, "file", "f", "", "YAML draft describing the table")
	tableCreateCmd.Flags().StringVar(&importPath, "import", "", "Spreadsheet to import after creation")
	tableCreateCmd.Flags().StringVar(&objectLoc, "object", "", "Object store location (bucket/key) to import after creation")
	_ = tableCreateCmd.MarkFlagRequired("file")
	tableCreateCmd.MarkFlagsMutuallyExclusive("import", "object")

	for _, c := range []*cobra.Command{tableImportCmd, tableInferCmd} {
		c.Flags().StringVar(&importPath, "file", "", "Local CSV or TSV file")
		c.Flags().StringVar(&objectLoc, "object", "", "Object store location, bucket/key")
		c.MarkFlagsMutuallyExclusive("file", "object")
		c.MarkFlagsOneRequired("file", "object")
	}
	tableInferCmd.Flags().IntVar(&maxRows, "max-rows", 0, "Stop reading after this many rows (default: all)")

	tableCmd.AddCommand(tableListCmd, tableShowCmd, tableCreateCmd, tableImportCmd, tableInferCmd)
}

func runTableList(cmd *cobra.Command, _ []string) error {
	a, err := openEditor(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	names, err := a.meta.ListTables(cmd.Context(), schemaName)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

func runTableShow(cmd *cobra.Command, args []string) error {
	ref, err := parseTableRef(args[0])
	if err != nil {
		return err
	}
	a, err := openEditor(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.meta.RetrieveTable(cmd.Context(), ref.Schema, ref.Name)
	if err != nil {
		return err
	}
	fks, err := a.meta.ListForeignKeyConstraints(cmd.Context(), ref.Schema, ref.Name)
	if err != nil {
		return err
	}
	d := editor.FromTable(t, fks)
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&d)
}

func readDraft(path string) (*editor.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read draft", err)
	}
	var d editor.Draft
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse draft", err)
	}
	return &d, nil
}

// openSource opens the spreadsheet named by --file or --object. The
// returned closer must be called once the import is done.
func openSource(cmd *cobra.Command, a *app) (editor.FileSource, io.Closer, error) {
	if objectLoc != "" {
		if a.store == nil {
			return editor.FileSource{}, nil, errs.New(errs.ErrKindInvalidInput, "no object store is configured (TABLEKIT_FILESTORE_ENDPOINT)")
		}
		bucket, key, err := filestore.ParseLocation(objectLoc, cfg.FileStore.DefaultBucket)
		if err != nil {
			return editor.FileSource{}, nil, err
		}
		obj, opts, err := spreadsheet.OpenObject(cmd.Context(), a.store, bucket, key)
		if err != nil {
			return editor.FileSource{}, nil, err
		}
		return editor.FileSource{Reader: obj, Size: max(obj.Info().Size, 0), Options: opts}, obj, nil
	}

	f, err := os.Open(importPath)
	if err != nil {
		return editor.FileSource{}, nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open spreadsheet", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return editor.FileSource{Reader: f, Size: size, Options: spreadsheet.ParseOptions{FileName: importPath}}, f, nil
}

func runTableCreate(cmd *cobra.Command, _ []string) error {
	d, err := readDraft(draftFile)
	if err != nil {
		return err
	}
	a, err := openEditor(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if importPath != "" || objectLoc != "" {
		src, closer, err := openSource(cmd, a)
		if err != nil {
			return err
		}
		defer closer.Close()
		d.ImportFile = &src
	}

	res, err := a.editor.CreateTable(cmd.Context(), d)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.ImportErr != nil {
		return errs.Wrap(errs.ErrKindPartialFailure, res.ImportError, res.ImportErr)
	}
	return nil
}

func runTableImport(cmd *cobra.Command, args []string) error {
	ref, err := parseTableRef(args[0])
	if err != nil {
		return err
	}
	a, err := openEditor(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.meta.RetrieveTable(cmd.Context(), ref.Schema, ref.Name)
	if err != nil {
		return err
	}
	src, closer, err := openSource(cmd, a)
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := a.editor.ImportFile(cmd.Context(), t, src)
	if perr := printJSON(cmd.OutOrStdout(), res); perr != nil && err == nil {
		err = perr
	}
	return err
}

func runTableInfer(cmd *cobra.Command, _ []string) error {
	a := &app{}
	if objectLoc != "" {
		sc := cfg.ObjectStoreConfig()
		if sc == nil {
			return errs.New(errs.ErrKindInvalidInput, "no object store is configured (TABLEKIT_FILESTORE_ENDPOINT)")
		}
		store, err := openStore(cmd.Context(), sc)
		if err != nil {
			return err
		}
		a.store = store
		defer store.Close()
	}

	src, closer, err := openSource(cmd, a)
	if err != nil {
		return err
	}
	defer closer.Close()

	src.Options.MaxRows = maxRows
	content, err := spreadsheet.Parse(src.Reader, src.Options)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"headers":  content.Headers,
		"rowCount": content.RowCount,
		"types":    spreadsheet.InferColumnTypes(content),
		"columns":  spreadsheet.Fields(content),
	})
}
