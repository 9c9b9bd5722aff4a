// Package main provides the kernelgen CLI: it builds transpose and depthwise programs
// and prints their WGSL, their manifest or their dispatch plan.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/kernels/internal/depthwise"
	"github.com/born-ml/kernels/internal/program"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/born-ml/kernels/internal/transpose"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() { usage(flag.CommandLine.Output()) }
	flag.Parse()
	defer klog.Flush()

	if err := run(flag.Args(), os.Stdout); err != nil {
		klog.Errorf("kernelgen: %v", err)
		klog.Flush()
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "kernelgen %s\n\n", version)
	fmt.Fprintln(w, "Usage: kernelgen [klog flags] <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version                       Show version")
	fmt.Fprintln(w, "  emit transpose|depthwise      Print the WGSL of a program")
	fmt.Fprintln(w, "  manifest transpose|depthwise  Write the protobuf manifest of a program")
	fmt.Fprintln(w, "  plan transpose|depthwise      Print key, layout, workgroup and dispatch")
}

// run executes one command, writing its output to stdout.
func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}
	switch cmd := args[0]; cmd {
	case "version":
		fmt.Fprintf(stdout, "kernelgen %s\n", version)
		return nil
	case "emit", "manifest", "plan":
		if len(args) < 2 {
			return errors.Errorf("%s: missing program kind (transpose or depthwise)", cmd)
		}
		p, output, err := buildProgram(cmd, args[1], args[2:])
		if err != nil {
			return err
		}
		klog.V(1).Infof("built %s", p)
		switch cmd {
		case "emit":
			_, err = io.WriteString(stdout, p.Source())
			return err
		case "plan":
			return writePlan(stdout, p)
		default:
			return writeManifest(stdout, output, p)
		}
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
}

// buildProgram parses the flags of a program kind and builds it. output is the
// -o flag of the manifest command.
func buildProgram(cmd, kind string, args []string) (p *program.Program, output string, err error) {
	fs := flag.NewFlagSet(cmd+" "+kind, flag.ContinueOnError)
	if cmd == "manifest" {
		fs.StringVar(&output, "o", "", "write the manifest to `file` instead of stdout")
	}

	switch kind {
	case "transpose":
		shape := fs.String("shape", "2,3,4", "input `shape`")
		perm := fs.String("perm", "", "permutation (default reverses the axes)")
		if err := fs.Parse(args); err != nil {
			return nil, "", err
		}
		s, err := tensor.ParseShape(*shape)
		if err != nil {
			return nil, "", errors.Wrap(err, "-shape")
		}
		pm, err := parsePerm(*perm, len(s))
		if err != nil {
			return nil, "", err
		}
		p, err = transpose.NewProgram(s, pm)
		return p, output, err

	case "depthwise":
		in := fs.String("in", "1,5,5,3", "input `shape` [N,H,W,C]")
		filter := fs.String("filter", "3,3,3,2", "filter `shape` [FH,FW,C,M]")
		stride := fs.Int("stride", 1, "stride on both spatial axes")
		dilation := fs.Int("dilation", 1, "dilation on both spatial axes")
		pad := fs.String("pad", "valid", "padding: valid, same or a symmetric explicit `n`")
		addressing := fs.String("addressing", depthwise.MaskedLoad.String(), "addressing mode: masked, folded or batched")
		if err := fs.Parse(args); err != nil {
			return nil, "", err
		}
		inShape, err := tensor.ParseShape(*in)
		if err != nil {
			return nil, "", errors.Wrap(err, "-in")
		}
		filterShape, err := tensor.ParseShape(*filter)
		if err != nil {
			return nil, "", errors.Wrap(err, "-filter")
		}
		padding, err := parsePadding(*pad)
		if err != nil {
			return nil, "", err
		}
		a, err := depthwise.ParseAddressing(*addressing)
		if err != nil {
			return nil, "", err
		}
		params := tensor.Conv2DParams{
			Strides:   [2]int{*stride, *stride},
			Dilations: [2]int{*dilation, *dilation},
			Pad:       padding,
		}
		info, err := depthwise.ComputeConv2DInfo(inShape, filterShape, params)
		if err != nil {
			return nil, "", err
		}
		p, err = depthwise.NewProgram(info, depthwise.Options{Addressing: a})
		return p, output, err

	default:
		return nil, "", errors.Errorf("%s: unknown program kind %q", cmd, kind)
	}
}

func parsePerm(text string, rank int) ([]int, error) {
	if strings.TrimSpace(text) == "" {
		perm := make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
		return perm, nil
	}
	s, err := tensor.ParseShape(text)
	if err != nil {
		return nil, errors.Wrap(tensor.ErrInvalidPermutation, "-perm: "+text)
	}
	return []int(s), nil
}

func parsePadding(text string) (tensor.Padding, error) {
	switch text {
	case "valid":
		return tensor.Padding{Mode: tensor.PadValid}, nil
	case "same":
		return tensor.Padding{Mode: tensor.PadSame}, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return tensor.Padding{}, errors.Errorf("-pad: want valid, same or a non-negative integer, got %q", text)
	}
	return tensor.ExplicitPadding(n), nil
}

func writePlan(w io.Writer, p *program.Program) error {
	_, err := fmt.Fprintf(w, "name:      %s\nkey:       %s\noutput:    %v\nlayout:    %s\nworkgroup: %v\ndispatch:  %v\n",
		p.Name, p.ShaderKey, p.OutputShape, p.Layout, p.Workgroup, p.Dispatch)
	if err != nil {
		return err
	}
	for _, u := range p.Uniforms {
		if _, err := fmt.Fprintf(w, "uniform:   %s = %v\n", u.Name, u.Values); err != nil {
			return err
		}
	}
	return nil
}

func writeManifest(stdout io.Writer, output string, p *program.Program) error {
	data, err := p.MarshalManifest()
	if err != nil {
		return err
	}
	if output == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o600); err != nil {
		return errors.Wrap(err, "manifest")
	}
	klog.Infof("wrote %d byte manifest for %s to %s", len(data), p.ShaderKey, output)
	return nil
}
