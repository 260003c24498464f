package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"tms-provisioning-api/internal"
	"tms-provisioning-api/internal/config"
	"tms-provisioning-api/internal/logger"
	"tms-provisioning-api/pkg/importer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: import_excel --file=path.xlsx [--mapping=mapping.yaml] [--dry-run]")
		os.Exit(1)
	}

	var filePath, mappingPath string
	dryRun := false

	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "--file=") {
			filePath = strings.TrimPrefix(arg, "--file=")
		} else if strings.HasPrefix(arg, "--mapping=") {
			mappingPath = strings.TrimPrefix(arg, "--mapping=")
		} else if arg == "--dry-run" {
			dryRun = true
		}
	}

	if filePath == "" {
		fmt.Println("Error: file is required")
		fmt.Println("Usage: import_excel --file=path.xlsx [--mapping=mapping.yaml] [--dry-run]")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	zl, err := logger.New(logger.ConfigForEnvironment(cfg.Environment, cfg.LogLevel))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	srv, err := internal.NewServer(cfg, zl)
	if err != nil {
		log.Fatalf("Failed to wire workflow: %v", err)
	}
	defer srv.Close(context.Background())

	file, err := os.Open(filePath)
	if err != nil {
		log.Fatalf("Failed to open Excel file: %v", err)
	}
	defer file.Close()

	fmt.Printf("Provisioning from %s against %s (dry_run=%v)\n", filePath, cfg.TMS.BaseURL, dryRun)
	fmt.Println("=" + strings.Repeat("=", 60))

	summary, err := importer.ImportExcel(context.Background(), srv.Workflow, file, importer.ImportOptions{
		MappingPath: mappingPath,
		DryRun:      dryRun,
		MaxErrors:   50,
	})

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("IMPORT SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("Sheet: %s\n", summary.Sheet)
	fmt.Printf("Rows processed: %d\n", summary.Rows)
	fmt.Printf("Accounts created: %d\n", summary.Created)
	fmt.Printf("Accounts already present: %d\n", summary.Existing)
	fmt.Printf("Rows skipped: %d\n", summary.Skipped)
	fmt.Printf("Errors: %d\n", summary.Errors)
	fmt.Printf("Dry run: %v\n", summary.DryRun)

	if len(summary.Results) > 0 {
		fmt.Println("\nRow Details:")
		for _, r := range summary.Results {
			line := fmt.Sprintf("  Row %d %s: %s", r.Row, r.Email, r.State)
			if r.VendorLocationID != "" {
				line += " vendor=" + r.VendorLocationID
			}
			if r.Password != "" {
				line += " password=" + r.Password
			}
			if r.Partial {
				line += " (some location contacts missing)"
			}
			if r.Error != "" {
				line += " error=" + r.Error
			}
			fmt.Println(line)
		}
	}

	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
}
