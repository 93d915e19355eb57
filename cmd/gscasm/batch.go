package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Lierrmm/gsc-tool/arc"
	"github.com/Lierrmm/gsc-tool/gsc"
)

// batchCmd assembles every *.json file in a directory concurrently
// against one shared Context, logging and skipping failures instead of
// aborting the whole run.
func batchCmd() *cobra.Command {
	var family, variant, dir, outDir string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Assemble every JSON assembly file in a directory concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
			if err != nil {
				return errors.Wrap(err, "globbing input directory")
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return errors.Wrap(err, "creating output directory")
			}

			var wg sync.WaitGroup
			var mu sync.Mutex
			failed := 0

			switch family {
			case "arc":
				ctx, err := resolveARCContext(variant)
				if err != nil {
					return err
				}
				for _, path := range matches {
					path := path
					wg.Add(1)
					go func() {
						defer wg.Done()
						if err := assembleOneARC(ctx, path, outDir); err != nil {
							mu.Lock()
							failed++
							mu.Unlock()
							log.WithFields(map[string]interface{}{"file": path}).WithError(err).Error("assemble failed")
						}
					}()
				}
			case "gsc":
				ctx, err := resolveGSCContext(variant)
				if err != nil {
					return err
				}
				for _, path := range matches {
					path := path
					wg.Add(1)
					go func() {
						defer wg.Done()
						if err := assembleOneGSC(ctx, path, outDir); err != nil {
							mu.Lock()
							failed++
							mu.Unlock()
							log.WithFields(map[string]interface{}{"file": path}).WithError(err).Error("assemble failed")
						}
					}()
				}
			default:
				return errors.Errorf("unknown family %q, want arc or gsc", family)
			}

			wg.Wait()
			log.WithFields(map[string]interface{}{"total": len(matches), "failed": failed}).Info("batch complete")
			if failed > 0 {
				return errors.Errorf("%d of %d jobs failed", failed, len(matches))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "arc or gsc")
	cmd.Flags().StringVar(&variant, "variant", "", "engine variant")
	cmd.Flags().StringVar(&dir, "dir", "", "directory of *.json assembly files")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory")
	cmd.MarkFlagRequired("family")
	cmd.MarkFlagRequired("variant")
	cmd.MarkFlagRequired("dir")
	cmd.MarkFlagRequired("out")

	return cmd
}

func assembleOneARC(ctx *arc.Context, path, outDir string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading input")
	}
	var asm arc.Assembly
	if err := json.Unmarshal(raw, &asm); err != nil {
		return errors.Wrap(err, "decoding assembly")
	}
	a := arc.NewAssembler(ctx)
	name := stemName(path)
	script, devmap, err := a.Assemble(&asm, name)
	if err != nil {
		return errors.Wrap(err, "assembling")
	}
	if err := os.WriteFile(filepath.Join(outDir, name+".script"), script, 0o644); err != nil {
		return errors.Wrap(err, "writing script")
	}
	return os.WriteFile(filepath.Join(outDir, name+".devmap"), devmap, 0o644)
}

func assembleOneGSC(ctx *gsc.Context, path, outDir string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading input")
	}
	var asm gsc.Assembly
	if err := json.Unmarshal(raw, &asm); err != nil {
		return errors.Wrap(err, "decoding assembly")
	}
	a := gsc.NewAssembler(ctx)
	script, stack, devmap, err := a.Assemble(&asm)
	if err != nil {
		return errors.Wrap(err, "assembling")
	}
	name := stemName(path)
	if err := os.WriteFile(filepath.Join(outDir, name+".script"), script, 0o644); err != nil {
		return errors.Wrap(err, "writing script")
	}
	if err := os.WriteFile(filepath.Join(outDir, name+".stack"), stack, 0o644); err != nil {
		return errors.Wrap(err, "writing stack")
	}
	return os.WriteFile(filepath.Join(outDir, name+".devmap"), devmap, 0o644)
}

func stemName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
