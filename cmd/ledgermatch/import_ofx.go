package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgermatch/ledgermatch/internal/cli"
	"github.com/ledgermatch/ledgermatch/internal/ingest"
)

func importOFXCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-ofx [file-or-directory...]",
		Short: "Import bank transactions from OFX/QFX statements",
		Long: `Import corporate-card transactions from OFX or QFX statement
downloads. Directories are scanned for .ofx and .qfx files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	importer := ingest.NewOFXImporter(store)

	var paths []string
	for _, arg := range args {
		info, statErr := os.Stat(arg)
		if statErr != nil {
			return fmt.Errorf("failed to stat %s: %w", arg, statErr)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, readErr := os.ReadDir(arg)
		if readErr != nil {
			return fmt.Errorf("failed to read directory %s: %w", arg, readErr)
		}
		for _, entry := range entries {
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if !entry.IsDir() && (ext == ".ofx" || ext == ".qfx") {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("no OFX files found")
	}

	for _, path := range paths {
		file, openErr := os.Open(path)
		if openErr != nil {
			return fmt.Errorf("failed to open %s: %w", path, openErr)
		}

		result, impErr := importer.Import(ctx, file)
		_ = file.Close()
		if impErr != nil {
			return fmt.Errorf("import of %s failed: %w", path, impErr)
		}

		fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf(
			"✓ %s: %d imported, %d duplicates skipped", path, result.Created, result.Skipped)))
	}

	return nil
}
