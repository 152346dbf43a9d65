package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nandor-llir/llir/pkg/bitcode"
	"github.com/nandor-llir/llir/pkg/ir"
	"github.com/nandor-llir/llir/pkg/linker"
	"github.com/nandor-llir/llir/pkg/tags"
	"github.com/nandor-llir/llir/pkg/target"
)

var version = "0.1.0"

// Dump debug flags. -dprog and -dtags follow the ralph-cc convention
// of single-dash, CompCert-style names normalized to double-dash by
// normalizeFlags before pflag ever sees them.
var (
	dProg bool
	dTags bool
)

var debugFlagNames = []string{"dprog", "dtags"}

// normalizeFlags converts CompCert/ralph-cc-style single-dash flags
// like -dtags to --dtags, the idiom cmd/ralph-cc/main.go used for its
// own per-stage dump flags.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, name := range debugFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "llir",
		Short: "llir is a whole-program link-time optimizer core for a typed SSA IR",
		Long: `llir decodes, links, analyzes, and verifies whole-program bitcode
modules for a typed SSA intermediate representation. It consumes
already-compiled object files and archives; it performs no textual
parsing and no machine-specific code generation of its own.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				if l, err := zap.NewDevelopment(); err == nil {
					linker.SetLogger(l)
					tags.SetLogger(l)
				}
			}
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "trace linker transfer and fixed-point analysis progress")

	rootCmd.AddCommand(newDumpCmd(out, errOut))
	rootCmd.AddCommand(newLinkCmd(out, errOut))
	rootCmd.AddCommand(newVerifyCmd(out, errOut))
	return rootCmd
}

// readModules decodes a single input file, expanding it into one
// program per archive member when it is an archive (the same
// object/archive magic distinction pkg/linker.Load makes), since dump
// and verify both operate on either shape.
func readModules(path string) ([]*ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == bitcode.ArchiveMagic {
		members, err := bitcode.ReadArchive(data)
		if err != nil {
			return nil, err
		}
		progs := make([]*ir.Program, 0, len(members))
		for _, m := range members {
			prog, err := bitcode.Read(m)
			if err != nil {
				return nil, err
			}
			progs = append(progs, prog)
		}
		return progs, nil
	}
	prog, err := bitcode.Read(data)
	if err != nil {
		return nil, err
	}
	return []*ir.Program{prog}, nil
}

func newDumpCmd(out, errOut io.Writer) *cobra.Command {
	var targetTriple string

	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "decode a bitcode object or archive and print its textual dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progs, err := readModules(args[0])
			if err != nil {
				fmt.Fprintf(errOut, "llir: %s: %s\n", args[0], err)
				return err
			}

			var tgt *target.Target
			if dTags {
				tgt, err = target.Parse(targetTriple)
				if err != nil {
					fmt.Fprintf(errOut, "llir: %s: %s\n", targetTriple, err)
					return err
				}
			}

			printer := ir.NewPrinter(out)
			for _, prog := range progs {
				if dProg {
					printer.PrintProgram(prog)
				}
				if dTags {
					if err := dumpTags(out, prog, tgt); err != nil {
						fmt.Fprintf(errOut, "llir: %s: %s\n", args[0], err)
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dProg, "dprog", true, "print the textual program dump")
	cmd.Flags().BoolVar(&dTags, "dtags", false, "additionally print the type/tag lattice annotation per value")
	cmd.Flags().StringVar(&targetTriple, "target", "x86_64-unknown-linux-gnu", "target triple used to seed the tag analysis")
	return cmd
}

// dumpTags runs the type/tag fixed point over prog and prints, for
// every instruction return value, its converged TaggedType on a line
// naming the block, the return slot and the opcode, followed by each
// function's aggregated return types.
func dumpTags(out io.Writer, prog *ir.Program, tgt *target.Target) error {
	a, err := tags.Run(prog, tgt)
	if err != nil {
		return err
	}
	for _, fn := range prog.Funcs() {
		fmt.Fprintf(out, "func %s tags:\n", fn.Name())
		for _, b := range fn.Blocks() {
			for _, inst := range b.Insts() {
				for slot := 0; slot < inst.NumReturns(); slot++ {
					fmt.Fprintf(out, "  %s.%d: %s: %s\n", b.Name(), slot, inst.Kind(), a.TypeOf(inst, slot))
				}
			}
		}
		for i, ty := range a.ReturnTypes(fn) {
			fmt.Fprintf(out, "  ret.%d: %s\n", i, ty)
		}
	}
	return nil
}

func newLinkCmd(out, errOut io.Writer) *cobra.Command {
	var (
		output      string
		entry       string
		searchPaths []string
		libraries   []string
	)

	cmd := &cobra.Command{
		Use:   "link [objects/archives...]",
		Short: "resolve symbols across a set of bitcode modules and emit a linked program",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := make([]linker.Input, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(errOut, "llir: %s: %s\n", path, err)
					return err
				}
				inputs = append(inputs, linker.Input{Name: path, Data: data})
			}

			l := linker.New(linker.Options{
				EntryName:   entry,
				SearchPaths: searchPaths,
				Libraries:   libraries,
			})
			outProg, err := l.Link(inputs)
			if err != nil {
				fmt.Fprintf(errOut, "%s\n", err)
				return err
			}

			encoded, err := bitcode.Write(outProg)
			if err != nil {
				fmt.Fprintf(errOut, "llir: %s\n", err)
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(encoded)
				return err
			}
			return os.WriteFile(output, encoded, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&entry, "entry", "_start", "entry point symbol the transfer closure starts from")
	cmd.Flags().StringArrayVar(&searchPaths, "search-path", nil, "library search path, recorded for a downstream system linker")
	cmd.Flags().StringArrayVar(&libraries, "library", nil, "library name, recorded for a downstream system linker")
	return cmd
}

func newVerifyCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "decode a bitcode object or archive and check the structural invariants of spec.md §8",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progs, err := readModules(args[0])
			if err != nil {
				fmt.Fprintf(errOut, "llir: %s: %s\n", args[0], err)
				return err
			}

			var failed bool
			for _, prog := range progs {
				for _, violation := range ir.Verify(prog) {
					fmt.Fprintln(errOut, violation.Error())
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("verification failed")
			}
			fmt.Fprintf(out, "%s: ok\n", args[0])
			return nil
		},
	}
	return cmd
}
