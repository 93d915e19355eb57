package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Lierrmm/gsc-tool/arc"
	"github.com/Lierrmm/gsc-tool/gsc"
)

func resolveARCContext(variant string) (*arc.Context, error) {
	switch variant {
	case "t6":
		return arc.NewT6Context(), nil
	case "t9":
		return arc.NewT9Context(), nil
	default:
		return nil, errors.Errorf("unknown arc variant %q", variant)
	}
}

func resolveGSCContext(variant string) (*gsc.Context, error) {
	switch variant {
	case "iw6":
		return gsc.NewIW6Context(), nil
	case "iw9":
		return gsc.NewIW9Context(), nil
	default:
		return nil, errors.Errorf("unknown gsc variant %q", variant)
	}
}

func assembleCmd() *cobra.Command {
	var family, variant, in, outScript, outStack, outDevmap, name string

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble a single JSON assembly file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(in)
			if err != nil {
				return errors.Wrapf(err, "reading %s", in)
			}

			switch family {
			case "arc":
				ctx, err := resolveARCContext(variant)
				if err != nil {
					return err
				}
				var asm arc.Assembly
				if err := json.Unmarshal(raw, &asm); err != nil {
					return errors.Wrap(err, "decoding assembly")
				}
				a := arc.NewAssembler(ctx)
				script, devmap, err := a.Assemble(&asm, name)
				if err != nil {
					return errors.Wrap(err, "assembling")
				}
				if err := writeOutputs(outScript, script, outDevmap, devmap); err != nil {
					return err
				}
			case "gsc":
				ctx, err := resolveGSCContext(variant)
				if err != nil {
					return err
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
				if err := writeOutputs(outScript, script, outDevmap, devmap); err != nil {
					return err
				}
				if outStack != "" {
					if err := os.WriteFile(outStack, stack, 0o644); err != nil {
						return errors.Wrapf(err, "writing %s", outStack)
					}
				}
			default:
				return errors.Errorf("unknown family %q, want arc or gsc", family)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "arc or gsc")
	cmd.Flags().StringVar(&variant, "variant", "", "engine variant (t6/t9 for arc, iw6/iw9 for gsc)")
	cmd.Flags().StringVar(&in, "in", "", "input JSON assembly path")
	cmd.Flags().StringVar(&outScript, "out", "", "output script path")
	cmd.Flags().StringVar(&outStack, "out-stack", "", "output stack path (gsc only)")
	cmd.Flags().StringVar(&outDevmap, "devmap", "", "output dev-map path")
	cmd.Flags().StringVar(&name, "name", "", "script name (arc only)")
	cmd.MarkFlagRequired("family")
	cmd.MarkFlagRequired("variant")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")

	return cmd
}

func writeOutputs(outScript string, script []byte, outDevmap string, devmap []byte) error {
	if err := os.WriteFile(outScript, script, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", outScript)
	}
	if outDevmap != "" {
		if err := os.WriteFile(outDevmap, devmap, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", outDevmap)
		}
	}
	return nil
}
